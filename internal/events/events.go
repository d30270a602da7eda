package events

import (
	"encoding/json"
)

// Kind is the wire tag of an event on the multiplexed channel.
type Kind string

const (
	KindStarted             Kind = "started"
	KindTextDelta           Kind = "text_delta"
	KindToolRequest         Kind = "tool_request"
	KindToolApprovalRequest Kind = "tool_approval_request"
	KindToolAutoApproved    Kind = "tool_auto_approved"
	KindToolDenied          Kind = "tool_denied"
	KindToolResult          Kind = "tool_result"
	KindReasoning           Kind = "reasoning"
	KindCompleted           Kind = "completed"
	KindError               Kind = "error"
	KindSystemHooks         Kind = "system_hooks"

	KindSubAgentStarted     Kind = "sub_agent_started"
	KindSubAgentToolRequest Kind = "sub_agent_tool_request"
	KindSubAgentToolResult  Kind = "sub_agent_tool_result"
	KindSubAgentCompleted   Kind = "sub_agent_completed"
	KindSubAgentError       Kind = "sub_agent_error"

	KindWorkflowStarted       Kind = "workflow_started"
	KindWorkflowStepStarted   Kind = "workflow_step_started"
	KindWorkflowStepCompleted Kind = "workflow_step_completed"
	KindWorkflowCompleted     Kind = "workflow_completed"
	KindWorkflowError         Kind = "workflow_error"
	KindPlanUpdated           Kind = "plan_updated"

	KindContextPruned         Kind = "context_pruned"
	KindContextWarning        Kind = "context_warning"
	KindToolResponseTruncated Kind = "tool_response_truncated"
	KindLoopWarning           Kind = "loop_warning"
	KindLoopBlocked           Kind = "loop_blocked"
	KindMaxIterationsReached  Kind = "max_iterations_reached"

	KindCommandBlock     Kind = "command_block"
	KindTerminalOutput   Kind = "terminal_output"
	KindAlternateScreen  Kind = "alternate_screen"
	KindDirectoryChanged Kind = "directory_changed"
	KindSessionEnded     Kind = "session_ended"
)

// Event is implemented by every decoded variant. Session returns the session
// id the event was tagged with, or "" when the producer omitted it.
type Event interface {
	EventKind() Kind
	Session() string
}

// Meta carries the optional session attribution shared by all variants.
type Meta struct {
	SessionID string `json:"session_id,omitempty"`
}

func (m Meta) Session() string { return m.SessionID }

// Started marks the beginning of an agent turn.
type Started struct {
	Meta
	TurnID string `json:"turn_id"`
}

// TextDelta is one streaming text chunk. Accumulated carries the full text so
// far as seen by the producer; consumers may rely on either.
type TextDelta struct {
	Meta
	Delta       string `json:"delta"`
	Accumulated string `json:"accumulated,omitempty"`
}

// ToolRequest announces a tool execution with no approval gate attached.
type ToolRequest struct {
	Meta
	RequestID string          `json:"request_id"`
	ToolName  string          `json:"tool_name"`
	Args      json.RawMessage `json:"args,omitempty"`
	Source    ToolSource      `json:"source,omitempty"`
}

// ToolApprovalRequest asks the user to approve a tool call. Stats, RiskLevel,
// CanLearn and Suggestion are advisory metadata for the approval UI.
type ToolApprovalRequest struct {
	Meta
	RequestID  string           `json:"request_id"`
	ToolName   string           `json:"tool_name"`
	Args       json.RawMessage  `json:"args,omitempty"`
	Stats      *ApprovalPattern `json:"stats,omitempty"`
	RiskLevel  RiskLevel        `json:"risk_level,omitempty"`
	CanLearn   bool             `json:"can_learn,omitempty"`
	Suggestion string           `json:"suggestion,omitempty"`
	Source     ToolSource       `json:"source,omitempty"`
}

// ToolAutoApproved reports a call approved by a learned pattern.
type ToolAutoApproved struct {
	Meta
	RequestID string          `json:"request_id"`
	ToolName  string          `json:"tool_name"`
	Args      json.RawMessage `json:"args,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Source    ToolSource      `json:"source,omitempty"`
}

// ToolDenied reports a call rejected by policy or by the user.
type ToolDenied struct {
	Meta
	RequestID string          `json:"request_id"`
	ToolName  string          `json:"tool_name"`
	Args      json.RawMessage `json:"args,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Source    ToolSource      `json:"source,omitempty"`
}

// ToolResult settles a previously requested tool call.
type ToolResult struct {
	Meta
	RequestID string          `json:"request_id"`
	ToolName  string          `json:"tool_name"`
	Result    json.RawMessage `json:"result,omitempty"`
	Success   bool            `json:"success"`
	Source    ToolSource      `json:"source,omitempty"`
}

// Reasoning carries extended-thinking content.
type Reasoning struct {
	Meta
	Content string `json:"content"`
}

// Completed ends a turn successfully. Response is the producer's final text,
// used only when the locally accumulated stream is empty.
type Completed struct {
	Meta
	Response   string `json:"response,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Error ends a turn with an agent-reported failure.
type Error struct {
	Meta
	Message   string `json:"message"`
	ErrorType string `json:"error_type,omitempty"`
}

// SystemHooks surfaces lifecycle hook output on the timeline.
type SystemHooks struct {
	Meta
	Hooks []SystemHook `json:"hooks"`
}

type SubAgentStarted struct {
	Meta
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Task      string `json:"task,omitempty"`
	Depth     int    `json:"depth,omitempty"`
}

type SubAgentToolRequest struct {
	Meta
	AgentID  string          `json:"agent_id"`
	ToolName string          `json:"tool_name"`
	Args     json.RawMessage `json:"args,omitempty"`
}

type SubAgentToolResult struct {
	Meta
	AgentID  string `json:"agent_id"`
	ToolName string `json:"tool_name"`
	Success  bool   `json:"success"`
}

type SubAgentCompleted struct {
	Meta
	AgentID    string `json:"agent_id"`
	Response   string `json:"response,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

type SubAgentError struct {
	Meta
	AgentID string `json:"agent_id"`
	Error   string `json:"error"`
}

type WorkflowStarted struct {
	Meta
	WorkflowID   string `json:"workflow_id"`
	WorkflowName string `json:"workflow_name"`
}

type WorkflowStepStarted struct {
	Meta
	WorkflowID string `json:"workflow_id"`
	StepName   string `json:"step_name"`
	StepIndex  int    `json:"step_index"`
	TotalSteps int    `json:"total_steps"`
}

type WorkflowStepCompleted struct {
	Meta
	WorkflowID string `json:"workflow_id"`
	StepName   string `json:"step_name"`
	Output     string `json:"output,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

type WorkflowCompleted struct {
	Meta
	WorkflowID      string `json:"workflow_id"`
	FinalOutput     string `json:"final_output,omitempty"`
	TotalDurationMs int64  `json:"total_duration_ms,omitempty"`
}

type WorkflowError struct {
	Meta
	WorkflowID string `json:"workflow_id"`
	StepName   string `json:"step_name,omitempty"`
	Error      string `json:"error"`
}

// PlanUpdated replaces the session plan wholesale when Version is accepted.
type PlanUpdated struct {
	Meta
	Plan Plan `json:"plan"`
}

// ContextPruned reports that the agent dropped older messages to stay under
// its token budget. Advisory only; no reconciliation state changes.
type ContextPruned struct {
	Meta
	MessagesRemoved   int     `json:"messages_removed"`
	UtilizationBefore float64 `json:"utilization_before"`
	UtilizationAfter  float64 `json:"utilization_after"`
}

// ContextWarning reports that context utilization crossed a threshold.
type ContextWarning struct {
	Meta
	Utilization float64 `json:"utilization"`
	TotalTokens int     `json:"total_tokens"`
	MaxTokens   int     `json:"max_tokens"`
}

// ToolResponseTruncated reports that a tool result was cut down before the
// model saw it.
type ToolResponseTruncated struct {
	Meta
	ToolName        string `json:"tool_name"`
	OriginalTokens  int    `json:"original_tokens"`
	TruncatedTokens int    `json:"truncated_tokens"`
}

// LoopWarning reports a tool approaching the repeated-call threshold.
type LoopWarning struct {
	Meta
	ToolName     string `json:"tool_name"`
	CurrentCount int    `json:"current_count"`
	MaxCount     int    `json:"max_count"`
	Message      string `json:"message"`
}

// LoopBlocked reports a tool call refused by loop protection.
type LoopBlocked struct {
	Meta
	ToolName    string `json:"tool_name"`
	RepeatCount int    `json:"repeat_count"`
	MaxCount    int    `json:"max_count"`
	Message     string `json:"message"`
}

// MaxIterationsReached reports that the turn hit its tool-iteration cap.
type MaxIterationsReached struct {
	Meta
	Iterations    int    `json:"iterations"`
	MaxIterations int    `json:"max_iterations"`
	Message       string `json:"message"`
}

// CommandBlock is a shell prompt/command boundary marker emitted by the
// terminal integration. EventType is one of prompt_start, prompt_end,
// command_start, command_end. Command may be empty on command_end even when
// a command ran; ExitCode is nil when the shell could not report one.
type CommandBlock struct {
	Meta
	Command   string `json:"command,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	EventType string `json:"event_type"`
}

// TerminalOutput carries raw bytes for the session's capture pipeline.
type TerminalOutput struct {
	Meta
	Data []byte `json:"data"`
}

// AlternateScreen signals a TUI entering or leaving the alternate buffer.
type AlternateScreen struct {
	Meta
	Enabled bool `json:"enabled"`
}

// DirectoryChanged reports the shell's working directory.
type DirectoryChanged struct {
	Meta
	Path string `json:"path"`
}

// SessionEnded tears down all per-session state.
type SessionEnded struct {
	Meta
}

func (Started) EventKind() Kind               { return KindStarted }
func (TextDelta) EventKind() Kind             { return KindTextDelta }
func (ToolRequest) EventKind() Kind           { return KindToolRequest }
func (ToolApprovalRequest) EventKind() Kind   { return KindToolApprovalRequest }
func (ToolAutoApproved) EventKind() Kind      { return KindToolAutoApproved }
func (ToolDenied) EventKind() Kind            { return KindToolDenied }
func (ToolResult) EventKind() Kind            { return KindToolResult }
func (Reasoning) EventKind() Kind             { return KindReasoning }
func (Completed) EventKind() Kind             { return KindCompleted }
func (Error) EventKind() Kind                 { return KindError }
func (SystemHooks) EventKind() Kind           { return KindSystemHooks }
func (SubAgentStarted) EventKind() Kind       { return KindSubAgentStarted }
func (SubAgentToolRequest) EventKind() Kind   { return KindSubAgentToolRequest }
func (SubAgentToolResult) EventKind() Kind    { return KindSubAgentToolResult }
func (SubAgentCompleted) EventKind() Kind     { return KindSubAgentCompleted }
func (SubAgentError) EventKind() Kind         { return KindSubAgentError }
func (WorkflowStarted) EventKind() Kind       { return KindWorkflowStarted }
func (WorkflowStepStarted) EventKind() Kind   { return KindWorkflowStepStarted }
func (WorkflowStepCompleted) EventKind() Kind { return KindWorkflowStepCompleted }
func (WorkflowCompleted) EventKind() Kind     { return KindWorkflowCompleted }
func (WorkflowError) EventKind() Kind         { return KindWorkflowError }
func (PlanUpdated) EventKind() Kind           { return KindPlanUpdated }
func (ContextPruned) EventKind() Kind         { return KindContextPruned }
func (ContextWarning) EventKind() Kind        { return KindContextWarning }
func (ToolResponseTruncated) EventKind() Kind { return KindToolResponseTruncated }
func (LoopWarning) EventKind() Kind           { return KindLoopWarning }
func (LoopBlocked) EventKind() Kind           { return KindLoopBlocked }
func (MaxIterationsReached) EventKind() Kind  { return KindMaxIterationsReached }
func (CommandBlock) EventKind() Kind          { return KindCommandBlock }
func (TerminalOutput) EventKind() Kind        { return KindTerminalOutput }
func (AlternateScreen) EventKind() Kind       { return KindAlternateScreen }
func (DirectoryChanged) EventKind() Kind      { return KindDirectoryChanged }
func (SessionEnded) EventKind() Kind          { return KindSessionEnded }
