package session

import (
	"encoding/json"
	"strings"

	"github.com/qbit-ai/qbit-console/internal/events"
)

// markProcessed records a request id and reports whether it was new. The
// channel delivers at least once; a duplicate request event must cause no
// side effects at all.
func (s *state) markProcessed(requestID string) bool {
	id := strings.TrimSpace(requestID)
	if id == "" {
		return false
	}
	if _, seen := s.processed[id]; seen {
		return false
	}
	s.processed[id] = struct{}{}
	return true
}

// admitToolCall appends a new tool-call block and registers the call as
// active. The pending streaming text is flushed first so the block log keeps
// the interleaving order of arrival.
func (s *state) admitToolCall(call *events.ToolCall) {
	s.flushPendingText()
	s.blocks = append(s.blocks, events.ToolBlock(call))
	s.toolCalls[call.ID] = call
	if s.workflow != nil && call.Source.IsWorkflow(s.workflow.WorkflowID) {
		s.workflow.ToolCalls = append(s.workflow.ToolCalls, *call)
	}
}

func (e *Engine) handleToolRequest(s *state, ev *events.ToolRequest) {
	if !s.markProcessed(ev.RequestID) {
		return
	}
	s.admitToolCall(&events.ToolCall{
		ID:              ev.RequestID,
		Name:            ev.ToolName,
		Args:            ev.Args,
		Status:          events.ToolRequested,
		ExecutedByAgent: ev.Source.Type == events.SourceSubAgent,
		Source:          ev.Source,
	})
}

func (e *Engine) handleToolApprovalRequest(s *state, ev *events.ToolApprovalRequest) {
	if !s.markProcessed(ev.RequestID) {
		return
	}
	s.admitToolCall(&events.ToolCall{
		ID:        ev.RequestID,
		Name:      ev.ToolName,
		Args:      ev.Args,
		Status:    events.ToolPendingApproval,
		RiskLevel: ev.RiskLevel,
		Source:    ev.Source,
	})
	s.pendingApproval = &Approval{
		RequestID:  ev.RequestID,
		ToolName:   ev.ToolName,
		Args:       string(ev.Args),
		Stats:      ev.Stats,
		RiskLevel:  ev.RiskLevel,
		CanLearn:   ev.CanLearn,
		Suggestion: ev.Suggestion,
	}
}

func (e *Engine) handleToolAutoApproved(s *state, ev *events.ToolAutoApproved) {
	if !s.markProcessed(ev.RequestID) {
		return
	}
	s.admitToolCall(&events.ToolCall{
		ID:     ev.RequestID,
		Name:   ev.ToolName,
		Args:   ev.Args,
		Status: events.ToolApprovedAuto,
		Source: ev.Source,
	})
}

func (e *Engine) handleToolDenied(s *state, ev *events.ToolDenied) {
	id := strings.TrimSpace(ev.RequestID)
	call, ok := s.toolCalls[id]
	if !ok {
		return
	}
	call.Status = events.ToolError
	if reason := strings.TrimSpace(ev.Reason); reason != "" {
		call.Result = quoteJSON(reason)
	}
	delete(s.toolCalls, id)
	if s.pendingApproval != nil && s.pendingApproval.RequestID == id {
		s.pendingApproval = nil
	}
}

func (e *Engine) handleToolResult(s *state, ev *events.ToolResult) {
	id := strings.TrimSpace(ev.RequestID)
	if s.pendingApproval != nil && s.pendingApproval.RequestID == id {
		s.pendingApproval = nil
	}

	status := events.ToolCompleted
	if !ev.Success {
		status = events.ToolError
	}

	if call, ok := s.toolCalls[id]; ok {
		call.Status = status
		call.Result = ev.Result
		return
	}

	// No active call (e.g. denied, or a replayed result after restore):
	// record the result on the block log entry with this id if one exists,
	// otherwise drop.
	for i := range s.blocks {
		block := &s.blocks[i]
		if block.Kind != events.BlockTool || block.Tool == nil || block.Tool.ID != id {
			continue
		}
		block.Tool.Status = status
		block.Tool.Result = ev.Result
		return
	}
	e.logf("debug: dropping tool_result for unknown request %q", id)
}

// quoteJSON wraps plain text as a JSON string value.
func quoteJSON(text string) []byte {
	out, err := json.Marshal(text)
	if err != nil {
		return nil
	}
	return out
}
