package events

import (
	"encoding/json"
	"strings"
	"time"
)

// ToolStatus tracks a tool call through its lifecycle. Transitions only move
// forward; a terminal status (completed, error) is never left.
type ToolStatus string

const (
	ToolRequested       ToolStatus = "requested"
	ToolPendingApproval ToolStatus = "pending_approval"
	ToolApprovedAuto    ToolStatus = "auto_approved"
	ToolRunning         ToolStatus = "running"
	ToolCompleted       ToolStatus = "completed"
	ToolError           ToolStatus = "error"
)

// SourceType identifies where a tool request originated.
type SourceType string

const (
	SourceMain     SourceType = "main"
	SourceSubAgent SourceType = "sub_agent"
	SourceWorkflow SourceType = "workflow"
)

// ToolSource carries origin metadata for a tool call. The zero value means
// the main agent.
type ToolSource struct {
	Type         SourceType `json:"type,omitempty"`
	AgentID      string     `json:"agent_id,omitempty"`
	AgentName    string     `json:"agent_name,omitempty"`
	WorkflowID   string     `json:"workflow_id,omitempty"`
	WorkflowName string     `json:"workflow_name,omitempty"`
	StepName     string     `json:"step_name,omitempty"`
	StepIndex    *int       `json:"step_index,omitempty"`
}

func (s ToolSource) IsWorkflow(workflowID string) bool {
	return s.Type == SourceWorkflow && s.WorkflowID == workflowID
}

// ToolCall is the engine's record of one in-flight or settled tool call.
// ID is the request identifier and the dedup key within a turn.
type ToolCall struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Args            json.RawMessage `json:"args,omitempty"`
	Status          ToolStatus      `json:"status"`
	Result          json.RawMessage `json:"result,omitempty"`
	ExecutedByAgent bool            `json:"executed_by_agent"`
	RiskLevel       RiskLevel       `json:"risk_level,omitempty"`
	Source          ToolSource      `json:"source,omitempty"`
}

// IsSubAgent reports whether the call is a sub-agent invocation tool.
func (c ToolCall) IsSubAgent() bool {
	return strings.HasPrefix(c.Name, "sub_agent_")
}

// BlockKind tags an entry in a session's ordered block log.
type BlockKind string

const (
	BlockText        BlockKind = "text"
	BlockTool        BlockKind = "tool"
	BlockSystemHooks BlockKind = "system_hooks"
)

// SystemHook records one lifecycle hook invocation surfaced to the timeline.
type SystemHook struct {
	Name   string `json:"name"`
	Event  string `json:"event"`
	Output string `json:"output,omitempty"`
}

// Block is one ordered entry of a session's in-progress turn log. The block
// log is the single source of truth for reconstruction order: it is only
// appended to, or filtered at finalization, never reordered.
type Block struct {
	Kind    BlockKind    `json:"kind"`
	Content string       `json:"content,omitempty"`
	Tool    *ToolCall    `json:"tool_call,omitempty"`
	Hooks   []SystemHook `json:"hooks,omitempty"`
}

func TextBlock(content string) Block { return Block{Kind: BlockText, Content: content} }

func ToolBlock(call *ToolCall) Block { return Block{Kind: BlockTool, Tool: call} }

func HooksBlock(hooks []SystemHook) Block { return Block{Kind: BlockSystemHooks, Hooks: hooks} }

// RiskLevel classifies a tool operation for approval UIs.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ApprovalPattern is the learned approval statistic published alongside a
// tool_approval_request. It informs the UI only; it never drives the tool
// call state machine.
type ApprovalPattern struct {
	ToolName      string    `json:"tool_name"`
	TotalRequests int       `json:"total_requests"`
	Approvals     int       `json:"approvals"`
	Denials       int       `json:"denials"`
	AlwaysAllow   bool      `json:"always_allow"`
	LastUpdated   time.Time `json:"last_updated,omitempty"`
}

// StepStatus is the status of one plan or workflow step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// PlanStep is a single entry of a versioned task plan.
type PlanStep struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
}

// PlanSummary is derived from the step list.
type PlanSummary struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
}

// Plan is a complete versioned task plan as delivered by plan_updated.
type Plan struct {
	Explanation string      `json:"explanation,omitempty"`
	Steps       []PlanStep  `json:"steps"`
	Summary     PlanSummary `json:"summary"`
	Version     int         `json:"version"`
	UpdatedAt   time.Time   `json:"updated_at,omitempty"`
}

// Summarize recomputes the summary counters from the steps.
func (p *Plan) Summarize() {
	if p == nil {
		return
	}
	sum := PlanSummary{Total: len(p.Steps)}
	for _, step := range p.Steps {
		switch step.Status {
		case StepInProgress:
			sum.InProgress++
		case StepCompleted:
			sum.Completed++
		default:
			sum.Pending++
		}
	}
	p.Summary = sum
}
