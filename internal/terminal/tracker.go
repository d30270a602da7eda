// Package terminal tracks the shell command lifecycle per session: command
// blocks, output capture, render-mode switching for TUI programs, tab
// process labels and git working-tree state.
package terminal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/qbit-ai/qbit-console/internal/events"
	"github.com/qbit-ai/qbit-console/internal/history"
	"github.com/qbit-ai/qbit-console/internal/session"
)

// ProcessInspector reports the foreground process of a session's terminal.
// An empty name means the shell itself is in the foreground.
type ProcessInspector interface {
	ForegroundProcess(ctx context.Context, sessionID string) (string, error)
}

// GitInspector reads branch and working-tree status for a directory.
type GitInspector interface {
	Status(ctx context.Context, path string) (branch string, status string, err error)
}

// WorkspaceNotifier tells the backend agent process that a session's working
// directory changed. Best effort; failures are logged and dropped.
type WorkspaceNotifier interface {
	DirectoryChanged(ctx context.Context, sessionID string, path string) error
}

// Pipeline is the output-capture buffer for one command. It is owned by the
// tracker from command_start until it is serialized or disposed, never
// shared across commands.
type Pipeline interface {
	Write(data []byte)
	ScrollToBottom()
	Serialize(ctx context.Context) (string, error)
	Dispose()
}

// PipelineFactory creates a fresh capture pipeline for a session.
type PipelineFactory func(sessionID string) Pipeline

// Builtin leading tokens that flip a session into fullterm rendering the
// moment the command starts, before any alternate-screen signal arrives.
var builtinFullterm = []string{
	"vim", "nvim", "vi", "emacs", "nano", "less", "more", "man",
	"top", "htop", "btop", "tmux", "screen", "ssh", "watch",
	"tig", "lazygit", "k9s",
}

// Builtin commands that settle too fast to be worth a foreground probe.
var builtinFast = []string{
	"cd", "ls", "pwd", "echo", "clear", "cat", "which", "env",
	"export", "alias", "true", "false", "exit",
}

// row is the per-session lifecycle state. All access goes through the
// tracker mutex.
type row struct {
	sessionID   string
	lastCommand string
	startedAt   time.Time
	workingDir  string
	altScreen   bool
	fullterm    bool

	pipeline Pipeline

	probeTimer *time.Timer
	probeSeq   uint64

	gitSeq      uint64
	gitInFlight bool
}

// Tracker is the terminal command lifecycle state machine. One instance
// serves all sessions; rows are created on first sight of a session and
// destroyed on session_ended.
type Tracker struct {
	mu   sync.Mutex
	rows map[string]*row

	// gitSeqGen numbers git refreshes tracker-wide, so a row deleted and
	// recreated under the same session id can never reuse a sequence a
	// still-running refresh carries.
	gitSeqGen uint64

	engine    *session.Engine
	store     history.Store
	inspector ProcessInspector
	git       GitInspector
	notify    WorkspaceNotifier

	newPipeline PipelineFactory
	fullterm    map[string]struct{}
	fast        map[string]struct{}
	probeDelay  time.Duration

	logf func(format string, args ...any)
	now  func() time.Time

	// afterFunc is swapped out by tests to run timers synchronously.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// Options wires the tracker's collaborators. Engine is required; everything
// else degrades to a no-op when nil.
type Options struct {
	Engine    *session.Engine
	Store     history.Store
	Inspector ProcessInspector
	Git       GitInspector
	Notify    WorkspaceNotifier

	NewPipeline      PipelineFactory
	FulltermCommands []string
	FastCommands     []string
	ProbeDelay       time.Duration

	Logf func(format string, args ...any)
	Now  func() time.Time
}

func NewTracker(opts Options) *Tracker {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	probeDelay := opts.ProbeDelay
	if probeDelay <= 0 {
		probeDelay = 800 * time.Millisecond
	}
	t := &Tracker{
		rows:        make(map[string]*row),
		engine:      opts.Engine,
		store:       opts.Store,
		inspector:   opts.Inspector,
		git:         opts.Git,
		notify:      opts.Notify,
		newPipeline: opts.NewPipeline,
		fullterm:    tokenSet(builtinFullterm, opts.FulltermCommands),
		fast:        tokenSet(builtinFast, opts.FastCommands),
		probeDelay:  probeDelay,
		logf:        logf,
		now:         now,
		afterFunc:   time.AfterFunc,
	}
	return t
}

// HandleEvent consumes the terminal-side event kinds. Everything else is
// ignored so the tracker can share a feed with the session engine.
func (t *Tracker) HandleEvent(ctx context.Context, ev events.Event) {
	if t == nil || ev == nil {
		return
	}
	switch ev := ev.(type) {
	case *events.CommandBlock:
		t.handleCommandBlock(ctx, ev)
	case *events.TerminalOutput:
		t.handleOutput(ev)
	case *events.AlternateScreen:
		t.handleAlternateScreen(ev)
	case *events.DirectoryChanged:
		t.handleDirectoryChanged(ctx, ev)
	case *events.SessionEnded:
		t.CloseSession(ev.Session())
	}
}

func (t *Tracker) handleCommandBlock(ctx context.Context, ev *events.CommandBlock) {
	switch ev.EventType {
	case "command_start":
		t.commandStart(ev.Session(), ev.Command)
	case "command_end":
		t.commandEnd(ctx, ev)
	case "prompt_start":
		t.promptStart(ev.Session())
	case "prompt_end":
		// The shell is ready for input; nothing to track.
	default:
		t.logf("debug: unknown command block event type %q", ev.EventType)
	}
}

func (t *Tracker) handleOutput(ev *events.TerminalOutput) {
	t.mu.Lock()
	r := t.rows[strings.TrimSpace(ev.Session())]
	var p Pipeline
	if r != nil {
		p = r.pipeline
	}
	t.mu.Unlock()
	if p != nil {
		p.Write(ev.Data)
	}
}

func (t *Tracker) handleAlternateScreen(ev *events.AlternateScreen) {
	t.mu.Lock()
	r := t.ensureRowLocked(ev.Session())
	if r == nil {
		t.mu.Unlock()
		return
	}
	if ev.Enabled {
		r.altScreen = true
		r.fullterm = true
	} else {
		r.fullterm = false
	}
	id := r.sessionID
	t.mu.Unlock()

	if ev.Enabled {
		t.engine.SetRenderMode(id, session.RenderFullterm)
	} else {
		t.engine.SetRenderMode(id, session.RenderTimeline)
	}
}

func (t *Tracker) handleDirectoryChanged(ctx context.Context, ev *events.DirectoryChanged) {
	id := strings.TrimSpace(ev.Session())
	path := strings.TrimSpace(ev.Path)
	if id == "" || path == "" {
		return
	}
	t.mu.Lock()
	r := t.ensureRowLocked(id)
	if r != nil {
		r.workingDir = path
	}
	t.mu.Unlock()

	t.engine.SetWorkingDirectory(id, path)
	if t.notify != nil {
		if err := t.notify.DirectoryChanged(ctx, id, path); err != nil {
			t.logf("warn: workspace sync for session %s: %v", id, err)
		}
	}
	t.requestGitRefresh(id)
}

// commandStart opens a new command: caches the command text for the
// null-command command_end quirk, resets alternate-screen tracking, creates
// a fresh capture pipeline and arms the foreground probe.
func (t *Tracker) commandStart(sessionID string, command string) {
	command = strings.TrimSpace(command)

	t.mu.Lock()
	r := t.ensureRowLocked(sessionID)
	if r == nil {
		t.mu.Unlock()
		return
	}
	t.cancelProbeLocked(r)
	r.lastCommand = command
	r.startedAt = t.now()
	r.altScreen = false

	old := r.pipeline
	r.pipeline = nil
	if t.newPipeline != nil {
		r.pipeline = t.newPipeline(r.sessionID)
	}

	goFullterm := tokenMatches(t.fullterm, command)
	if goFullterm {
		r.fullterm = true
	}
	armProbe := !tokenMatches(t.fast, command)
	var seq uint64
	if armProbe && t.inspector != nil {
		r.probeSeq++
		seq = r.probeSeq
		r.probeTimer = t.afterFunc(t.probeDelay, func() {
			t.runProbe(r.sessionID, seq)
		})
	}
	id := r.sessionID
	t.mu.Unlock()

	if old != nil {
		old.Dispose()
	}
	if goFullterm {
		t.engine.SetRenderMode(id, session.RenderFullterm)
	}
}

// commandEnd settles the command. A nil exit code produces no block at all.
// Alternate-screen output is presentation scrollback, not history, so those
// commands emit a zero-output block.
func (t *Tracker) commandEnd(ctx context.Context, ev *events.CommandBlock) {
	t.mu.Lock()
	r := t.rows[strings.TrimSpace(ev.Session())]
	if r == nil {
		t.mu.Unlock()
		return
	}
	t.cancelProbeLocked(r)

	command := strings.TrimSpace(ev.Command)
	if command == "" {
		// The backend sometimes omits the command on command_end.
		command = r.lastCommand
	}
	altScreen := r.altScreen
	started := r.startedAt
	workingDir := r.workingDir
	pipeline := r.pipeline
	if ev.ExitCode != nil {
		// command_end takes the pipeline with it; the prompt_start that
		// follows must not dispose it while a serialization is pending.
		r.pipeline = nil
	}
	id := r.sessionID
	t.mu.Unlock()

	t.engine.SetProcessLabel(id, "")

	if ev.ExitCode == nil {
		return
	}
	exitCode := *ev.ExitCode

	rec := events.CommandBlockRecord{
		SessionID:        id,
		Command:          command,
		ExitCode:         exitCode,
		StartTime:        started,
		WorkingDirectory: workingDir,
	}
	if !started.IsZero() {
		rec.DurationMs = t.now().Sub(started).Milliseconds()
	}

	if altScreen || pipeline == nil {
		if pipeline != nil {
			pipeline.Dispose()
		}
		t.emitCommandBlock(ctx, rec)
	} else {
		// Serialize off the event path so pending writes flush first.
		go func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			output, err := pipeline.Serialize(sctx)
			if err != nil {
				t.logf("warn: serializing output for session %s: %v", id, err)
			}
			pipeline.Dispose()
			rec.Output = output
			t.emitCommandBlock(sctx, rec)
		}()
	}

	if exitCode == 0 && mutatesBranch(command) {
		t.requestGitRefresh(id)
	}
}

// promptStart is the switch-back point for fullterm rendering. Interactive
// programs can emit command_end before giving the terminal back; only the
// returning prompt proves the shell has it again.
func (t *Tracker) promptStart(sessionID string) {
	t.mu.Lock()
	r := t.rows[strings.TrimSpace(sessionID)]
	if r == nil {
		t.mu.Unlock()
		return
	}
	pipeline := r.pipeline
	r.pipeline = nil
	wasFullterm := r.fullterm
	r.fullterm = false
	id := r.sessionID
	t.mu.Unlock()

	if pipeline != nil {
		pipeline.Dispose()
	}
	if wasFullterm {
		t.engine.SetRenderMode(id, session.RenderTimeline)
	}
}

// CloseSession tears down all per-session resources: pending timers, the
// capture pipeline and the row itself.
func (t *Tracker) CloseSession(sessionID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	id := strings.TrimSpace(sessionID)
	r := t.rows[id]
	var pipeline Pipeline
	if r != nil {
		t.cancelProbeLocked(r)
		pipeline = r.pipeline
		r.pipeline = nil
	}
	delete(t.rows, id)
	t.mu.Unlock()

	if pipeline != nil {
		pipeline.Dispose()
	}
}

func (t *Tracker) emitCommandBlock(ctx context.Context, rec events.CommandBlockRecord) {
	if t.store == nil {
		return
	}
	if err := t.store.AppendCommand(ctx, rec); err != nil {
		t.logf("warn: persisting command block for session %s: %v", rec.SessionID, err)
	}
}

func (t *Tracker) ensureRowLocked(sessionID string) *row {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil
	}
	r, ok := t.rows[id]
	if !ok {
		r = &row{sessionID: id}
		t.rows[id] = r
	}
	return r
}

func (t *Tracker) cancelProbeLocked(r *row) {
	if r.probeTimer != nil {
		r.probeTimer.Stop()
		r.probeTimer = nil
	}
	r.probeSeq++
}

// runProbe re-verifies what holds the foreground once the delay passes. The
// sequence check makes a timer that lost the race a deliberate no-op.
func (t *Tracker) runProbe(sessionID string, seq uint64) {
	t.mu.Lock()
	r := t.rows[sessionID]
	if r == nil || r.probeSeq != seq {
		t.mu.Unlock()
		return
	}
	r.probeTimer = nil
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	name, err := t.inspector.ForegroundProcess(ctx, sessionID)
	if err != nil {
		t.logf("debug: probing session %s: %v", sessionID, err)
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		// Still the shell; nothing to label.
		return
	}

	t.mu.Lock()
	r = t.rows[sessionID]
	stale := r == nil || r.probeSeq != seq
	t.mu.Unlock()
	if stale {
		return
	}
	t.engine.SetProcessLabel(sessionID, name)
}

// mutatesBranch reports whether a successful command can have moved the
// checked-out branch. Only these trigger an immediate git refresh.
func mutatesBranch(command string) bool {
	fields := strings.Fields(command)
	if len(fields) >= 2 && fields[0] == "git" {
		return fields[1] == "checkout" || fields[1] == "switch"
	}
	if len(fields) >= 3 && fields[0] == "gh" {
		return fields[1] == "pr" && fields[2] == "checkout"
	}
	return false
}

func tokenSet(lists ...[]string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, list := range lists {
		for _, token := range list {
			token = strings.TrimSpace(token)
			if token != "" {
				out[token] = struct{}{}
			}
		}
	}
	return out
}

func tokenMatches(set map[string]struct{}, command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	_, ok := set[fields[0]]
	return ok
}
