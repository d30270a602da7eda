package session

import (
	"strings"
	"time"

	"github.com/qbit-ai/qbit-console/internal/events"
)

// RenderMode selects how a session tab presents itself: the structured
// timeline, or raw live terminal output.
type RenderMode string

const (
	RenderTimeline RenderMode = "timeline"
	RenderFullterm RenderMode = "fullterm"
)

// Approval is the pending tool-approval surfaced to the UI. The stats and
// suggestion fields are advisory and never drive state transitions.
type Approval struct {
	RequestID  string                  `json:"request_id"`
	ToolName   string                  `json:"tool_name"`
	Args       string                  `json:"args,omitempty"`
	Stats      *events.ApprovalPattern `json:"stats,omitempty"`
	RiskLevel  events.RiskLevel        `json:"risk_level,omitempty"`
	CanLearn   bool                    `json:"can_learn,omitempty"`
	Suggestion string                  `json:"suggestion,omitempty"`
}

// state is one row of the session table. All access goes through the engine
// mutex; nothing outside this package holds a reference to it.
type state struct {
	id     string
	turnID string

	// Streaming accumulation for the in-flight turn. pendingText holds text
	// not yet flushed into a block; fullText is the whole turn's text and is
	// the persisted message content.
	pendingText strings.Builder
	fullText    strings.Builder
	thinking    strings.Builder

	blocks    []events.Block
	toolCalls map[string]*events.ToolCall
	processed map[string]struct{}

	subAgents      []*events.SubAgent
	subAgentByID   map[string]*events.SubAgent
	claimedParents map[string]struct{}

	workflow *events.Workflow
	plan     *events.Plan

	pendingApproval *Approval

	renderMode       RenderMode
	processLabel     string
	workingDirectory string
	gitBranch        string
	gitStatus        string
}

func newState(id string) *state {
	return &state{
		id:             id,
		toolCalls:      make(map[string]*events.ToolCall),
		processed:      make(map[string]struct{}),
		subAgentByID:   make(map[string]*events.SubAgent),
		claimedParents: make(map[string]struct{}),
		renderMode:     RenderTimeline,
	}
}

// flushPendingText moves buffered streaming text into a text block so tool
// blocks appended afterwards keep their interleaved position.
func (s *state) flushPendingText() {
	if s.pendingText.Len() == 0 {
		return
	}
	s.blocks = append(s.blocks, events.TextBlock(s.pendingText.String()))
	s.pendingText.Reset()
}

// clearTurn resets the streaming state of the current turn. Sub-agents, the
// plan and terminal fields survive; they have their own lifecycles.
func (s *state) clearTurn() {
	s.turnID = ""
	s.pendingText.Reset()
	s.fullText.Reset()
	s.thinking.Reset()
	s.blocks = nil
	s.toolCalls = make(map[string]*events.ToolCall)
	s.processed = make(map[string]struct{})
	s.pendingApproval = nil
}

// Snapshot is a copy of one session's live state, safe to read after the
// engine moves on.
type Snapshot struct {
	SessionID        string
	TurnID           string
	TurnActive       bool
	StreamingText    string
	Thinking         string
	Timeline         []events.TimelineItem
	PendingApproval  *Approval
	Plan             *events.Plan
	Workflow         *events.Workflow
	SubAgents        []events.SubAgent
	RenderMode       RenderMode
	ProcessLabel     string
	WorkingDirectory string
	GitBranch        string
	GitStatus        string
	Taken            time.Time
}

func (s *state) snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		SessionID:        s.id,
		TurnID:           s.turnID,
		TurnActive:       s.turnID != "",
		StreamingText:    s.fullText.String(),
		Thinking:         s.thinking.String(),
		Timeline:         BuildTimeline(s.liveBlocks(), s.subAgents),
		RenderMode:       s.renderMode,
		ProcessLabel:     s.processLabel,
		WorkingDirectory: s.workingDirectory,
		GitBranch:        s.gitBranch,
		GitStatus:        s.gitStatus,
		Taken:            now,
	}
	if s.pendingApproval != nil {
		approval := *s.pendingApproval
		snap.PendingApproval = &approval
	}
	if s.plan != nil {
		plan := *s.plan
		plan.Steps = append([]events.PlanStep(nil), s.plan.Steps...)
		snap.Plan = &plan
	}
	snap.Workflow = s.workflow.Clone()
	for _, agent := range s.subAgents {
		snap.SubAgents = append(snap.SubAgents, *agent.Clone())
	}
	return snap
}

// liveBlocks is the block log plus any unflushed trailing text, without
// mutating the log itself.
func (s *state) liveBlocks() []events.Block {
	if s.pendingText.Len() == 0 {
		return s.blocks
	}
	out := make([]events.Block, 0, len(s.blocks)+1)
	out = append(out, s.blocks...)
	out = append(out, events.TextBlock(s.pendingText.String()))
	return out
}
