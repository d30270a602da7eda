package events

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// AgentStatus is the lifecycle status of a sub-agent.
type AgentStatus string

const (
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentErrored   AgentStatus = "error"
)

// SubAgent is a nested agent invocation spawned by a tool call.
// ParentRequestID is the id of the spawning tool-call block and is fixed at
// creation; it is the join key used to re-insert the sub-agent at its
// original timeline position. Legacy producers may leave it empty, in which
// case matching falls back to index order.
type SubAgent struct {
	AgentID         string      `json:"agent_id"`
	AgentName       string      `json:"agent_name"`
	ParentRequestID string      `json:"parent_request_id,omitempty"`
	Task            string      `json:"task,omitempty"`
	Depth           int         `json:"depth,omitempty"`
	Status          AgentStatus `json:"status"`
	Response        string      `json:"response,omitempty"`
	Error           string      `json:"error,omitempty"`
	ToolCalls       []ToolCall  `json:"tool_calls,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	DurationMs      int64       `json:"duration_ms,omitempty"`
}

// Clone returns a deep copy safe to persist after the live state mutates.
func (a *SubAgent) Clone() *SubAgent {
	if a == nil {
		return nil
	}
	out := *a
	out.ToolCalls = append([]ToolCall(nil), a.ToolCalls...)
	return &out
}

// WorkflowStep is one step of the single active workflow.
type WorkflowStep struct {
	StepName   string     `json:"step_name"`
	Status     StepStatus `json:"status"`
	Output     string     `json:"output,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
	StepIndex  int        `json:"step_index,omitempty"`
	TotalSteps int        `json:"total_steps,omitempty"`
}

// Workflow tracks the single active workflow of a session. ToolCalls
// accumulates the calls attributed to the workflow so the finalizer can carry
// them on the persisted message after the generic block list filters them.
type Workflow struct {
	WorkflowID   string         `json:"workflow_id"`
	WorkflowName string         `json:"workflow_name"`
	Steps        []WorkflowStep `json:"steps,omitempty"`
	ToolCalls    []ToolCall     `json:"tool_calls,omitempty"`
	FinalOutput  string         `json:"final_output,omitempty"`
	Error        string         `json:"error,omitempty"`
	FailedStep   string         `json:"failed_step,omitempty"`
	Done         bool           `json:"done,omitempty"`
}

// Clone returns a deep copy safe to persist after the live state mutates.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	out := *w
	out.Steps = append([]WorkflowStep(nil), w.Steps...)
	out.ToolCalls = append([]ToolCall(nil), w.ToolCalls...)
	return &out
}

// TimelineKind tags one entry of a render-ready timeline.
type TimelineKind string

const (
	TimelineText        TimelineKind = "text"
	TimelineTool        TimelineKind = "tool"
	TimelineToolGroup   TimelineKind = "tool_group"
	TimelineSubAgent    TimelineKind = "sub_agent"
	TimelineSystemHooks TimelineKind = "system_hooks"
)

// TimelineItem is one entry of the interleaved reconstruction: narrative
// text, a tool call, a compact group of adjacent tool calls, an inlined
// sub-agent, or system hook output. Exactly one payload field is set,
// matching Kind.
type TimelineItem struct {
	Kind     TimelineKind `json:"kind"`
	Text     string       `json:"text,omitempty"`
	Tool     *ToolCall    `json:"tool_call,omitempty"`
	Group    []ToolCall   `json:"tool_group,omitempty"`
	SubAgent *SubAgent    `json:"sub_agent,omitempty"`
	Hooks    []SystemHook `json:"hooks,omitempty"`
}

// Message is the immutable persisted record of one completed turn.
// StreamingHistory is the authoritative interleaved reconstruction;
// ToolCalls is the derived flat projection kept for older consumers.
type Message struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"session_id"`
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	Timestamp        time.Time      `json:"timestamp"`
	ToolCalls        []ToolCall     `json:"tool_calls,omitempty"`
	StreamingHistory []TimelineItem `json:"streaming_history,omitempty"`
	ThinkingContent  string         `json:"thinking_content,omitempty"`
	Workflow         *Workflow      `json:"workflow,omitempty"`
}

// CommandBlockRecord is the persisted record of one settled shell command.
// It is only created when the exit code is known.
type CommandBlockRecord struct {
	SessionID        string    `json:"session_id"`
	Command          string    `json:"command"`
	Output           string    `json:"output"`
	ExitCode         int       `json:"exit_code"`
	StartTime        time.Time `json:"start_time"`
	DurationMs       int64     `json:"duration_ms"`
	WorkingDirectory string    `json:"working_directory,omitempty"`
}

// NewID returns a random identifier with an optional prefix.
func NewID(prefix string) string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	id := hex.EncodeToString(b[:])
	p := strings.TrimSpace(prefix)
	if p == "" {
		return id
	}
	return p + "-" + id
}
