package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/qbit-ai/qbit-console/internal/events"
	"github.com/qbit-ai/qbit-console/internal/history"
)

// Engine owns the session state table and reconciles the multiplexed event
// stream into live per-session state and persisted messages. All mutation
// happens inside HandleEvent under one mutex; handlers never block, so one
// event is fully applied before the next is looked at.
type Engine struct {
	mu         sync.Mutex
	sessions   map[string]*state
	lastActive string
	store      history.Store
	onMessage  func(events.Message)
	logf       func(format string, args ...any)
	now        func() time.Time
	newID      func(prefix string) string
}

// Options configures a new engine. Store may be nil, in which case finalized
// messages are dropped after being reported to OnMessage.
type Options struct {
	Store history.Store
	Logf  func(format string, args ...any)
	Now   func() time.Time
	NewID func(prefix string) string

	// OnMessage observes every finalized message after it is stored.
	OnMessage func(events.Message)
}

// NewEngine builds an engine with all per-window mutable state owned by the
// returned instance; there is no package-level state.
func NewEngine(opts Options) *Engine {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := opts.NewID
	if newID == nil {
		newID = events.NewID
	}
	return &Engine{
		sessions:  make(map[string]*state),
		store:     opts.Store,
		onMessage: opts.OnMessage,
		logf:      logf,
		now:       now,
		newID:     newID,
	}
}

// OpenSession creates the state row for a newly opened session. Opening an
// existing session is a no-op.
func (e *Engine) OpenSession(id string) {
	id = strings.TrimSpace(id)
	if e == nil || id == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[id]; ok {
		return
	}
	e.sessions[id] = newState(id)
	if e.lastActive == "" {
		e.lastActive = id
	}
}

// CloseSession destroys a session's row and forgets it as fallback target.
func (e *Engine) CloseSession(id string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, id)
	if e.lastActive == id {
		e.lastActive = ""
	}
}

// Sessions lists the known session ids.
func (e *Engine) Sessions() []string {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		out = append(out, id)
	}
	return out
}

// Snapshot returns a copy of one session's live state.
func (e *Engine) Snapshot(sessionID string) (Snapshot, bool) {
	if e == nil {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(e.now()), true
}

// SetRenderMode writes the render mode for a session. The terminal lifecycle
// tracker is the only caller.
func (e *Engine) SetRenderMode(sessionID string, mode RenderMode) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[sessionID]; ok {
		s.renderMode = mode
	}
}

// SetProcessLabel writes the tab process label for a session.
func (e *Engine) SetProcessLabel(sessionID string, label string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[sessionID]; ok {
		s.processLabel = label
	}
}

// SetWorkingDirectory writes the confirmed shell working directory.
func (e *Engine) SetWorkingDirectory(sessionID string, path string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[sessionID]; ok {
		s.workingDirectory = path
	}
}

// SetGitState writes the branch and working-tree status for a session.
func (e *Engine) SetGitState(sessionID string, branch string, status string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[sessionID]; ok {
		s.gitBranch = branch
		s.gitStatus = status
	}
}

// HandleEvent routes one event to its session's handler. Events with no
// resolvable session are dropped with a debug log; they never error.
func (e *Engine) HandleEvent(ctx context.Context, ev events.Event) {
	if e == nil || ev == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if ended, ok := ev.(*events.SessionEnded); ok {
		id := strings.TrimSpace(ended.Session())
		delete(e.sessions, id)
		if e.lastActive == id {
			e.lastActive = ""
		}
		return
	}

	s := e.resolve(ev.Session())
	if s == nil {
		e.logf("debug: dropping %s event for unknown session %q", ev.EventKind(), ev.Session())
		return
	}

	switch ev := ev.(type) {
	case *events.Started:
		e.handleStarted(s, ev)
	case *events.TextDelta:
		s.pendingText.WriteString(ev.Delta)
		s.fullText.WriteString(ev.Delta)
	case *events.Reasoning:
		s.thinking.WriteString(ev.Content)
	case *events.SystemHooks:
		s.flushPendingText()
		s.blocks = append(s.blocks, events.HooksBlock(ev.Hooks))
	case *events.ToolRequest:
		e.handleToolRequest(s, ev)
	case *events.ToolApprovalRequest:
		e.handleToolApprovalRequest(s, ev)
	case *events.ToolAutoApproved:
		e.handleToolAutoApproved(s, ev)
	case *events.ToolDenied:
		e.handleToolDenied(s, ev)
	case *events.ToolResult:
		e.handleToolResult(s, ev)
	case *events.SubAgentStarted:
		e.handleSubAgentStarted(s, ev)
	case *events.SubAgentToolRequest:
		e.handleSubAgentToolRequest(s, ev)
	case *events.SubAgentToolResult:
		e.handleSubAgentToolResult(s, ev)
	case *events.SubAgentCompleted:
		e.handleSubAgentCompleted(s, ev)
	case *events.SubAgentError:
		e.handleSubAgentError(s, ev)
	case *events.WorkflowStarted:
		e.handleWorkflowStarted(s, ev)
	case *events.WorkflowStepStarted:
		e.handleWorkflowStepStarted(s, ev)
	case *events.WorkflowStepCompleted:
		e.handleWorkflowStepCompleted(s, ev)
	case *events.WorkflowCompleted:
		e.handleWorkflowCompleted(s, ev)
	case *events.WorkflowError:
		e.handleWorkflowError(s, ev)
	case *events.PlanUpdated:
		e.handlePlanUpdated(s, ev)
	case *events.Completed:
		e.finalizeTurn(ctx, s, ev)
	case *events.Error:
		e.finalizeError(ctx, s, ev)
	case *events.ContextPruned, *events.ContextWarning, *events.ToolResponseTruncated,
		*events.LoopWarning, *events.LoopBlocked, *events.MaxIterationsReached:
		// Advisory agent-side notices; nothing to reconcile.
		e.logf("debug: %s notice for session %s", ev.EventKind(), s.id)
	default:
		e.logf("debug: unhandled %s event", ev.EventKind())
	}
}

// resolve maps an event's session tag to a state row. A missing or unknown
// tag falls back to the last-known active session.
func (e *Engine) resolve(sessionID string) *state {
	id := strings.TrimSpace(sessionID)
	if id == "" || id == "unknown" {
		id = e.lastActive
	}
	s, ok := e.sessions[id]
	if !ok {
		return nil
	}
	e.lastActive = id
	return s
}

func (e *Engine) handleStarted(s *state, ev *events.Started) {
	// At most one active turn per session: a fresh started event discards
	// any leftovers from an interrupted turn, sub-agents included.
	s.clearTurn()
	s.subAgents = nil
	s.subAgentByID = make(map[string]*events.SubAgent)
	s.claimedParents = make(map[string]struct{})
	s.turnID = strings.TrimSpace(ev.TurnID)
	if s.turnID == "" {
		s.turnID = e.newID("turn")
	}
}
