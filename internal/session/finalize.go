package session

import (
	"context"
	"strings"

	"github.com/qbit-ai/qbit-console/internal/events"
)

// finalizeTurn converts the accumulated streaming state into one persisted
// assistant message and resets the turn. Streaming state is always cleared,
// even when the turn produced nothing worth persisting.
func (e *Engine) finalizeTurn(ctx context.Context, s *state, ev *events.Completed) {
	s.flushPendingText()

	blocks := s.blocks
	if s.workflow != nil {
		blocks = filterWorkflowBlocks(blocks, s.workflow)
	}

	persisted := make([]events.Block, 0, len(blocks))
	for _, block := range blocks {
		if block.Kind == events.BlockTool && block.Tool != nil {
			call := *block.Tool
			// The turn is over; nothing will settle this call anymore.
			switch call.Status {
			case events.ToolCompleted, events.ToolError:
			default:
				call.Status = events.ToolCompleted
			}
			block.Tool = &call
		}
		persisted = append(persisted, block)
	}

	var toolCalls []events.ToolCall
	for _, block := range persisted {
		if block.Kind == events.BlockTool && block.Tool != nil {
			toolCalls = append(toolCalls, *block.Tool)
		}
	}

	content := s.fullText.String()
	if strings.TrimSpace(content) == "" {
		content = ev.Response
	}

	msg := events.Message{
		ID:               e.newID("msg"),
		SessionID:        s.id,
		Role:             "assistant",
		Content:          content,
		Timestamp:        e.now(),
		ToolCalls:        toolCalls,
		StreamingHistory: BuildTimeline(persisted, s.subAgents),
		ThinkingContent:  s.thinking.String(),
	}
	if s.workflow != nil {
		msg.Workflow = s.workflow.Clone()
		s.workflow = nil
	}

	if strings.TrimSpace(msg.Content) != "" || len(msg.StreamingHistory) > 0 || msg.Workflow != nil {
		e.persist(ctx, msg)
	}
	s.clearTurn()
}

// finalizeError short-circuits finalization: the error text becomes a
// system-role message and the streaming state is discarded wholesale,
// without the workflow filtering a normal completion runs.
func (e *Engine) finalizeError(ctx context.Context, s *state, ev *events.Error) {
	text := strings.TrimSpace(ev.Message)
	if text == "" {
		text = "agent error"
	}
	e.persist(ctx, events.Message{
		ID:        e.newID("msg"),
		SessionID: s.id,
		Role:      "system",
		Content:   text,
		Timestamp: e.now(),
	})
	s.clearTurn()
}

func (e *Engine) persist(ctx context.Context, msg events.Message) {
	if e.store != nil {
		if err := e.store.AppendMessage(ctx, msg); err != nil {
			e.logf("warn: persisting message for session %s: %v", msg.SessionID, err)
		}
	}
	if e.onMessage != nil {
		e.onMessage(msg)
	}
}

// filterWorkflowBlocks drops tool blocks the workflow tree already renders:
// the invocation call that launched the workflow and every call sourced from
// inside it.
func filterWorkflowBlocks(blocks []events.Block, w *events.Workflow) []events.Block {
	out := make([]events.Block, 0, len(blocks))
	for _, block := range blocks {
		if block.Kind == events.BlockTool && block.Tool != nil {
			if isWorkflowInvocation(block.Tool, w) || block.Tool.Source.IsWorkflow(w.WorkflowID) {
				continue
			}
		}
		out = append(out, block)
	}
	return out
}

func isWorkflowInvocation(call *events.ToolCall, w *events.Workflow) bool {
	if w.WorkflowName == "" {
		return false
	}
	return call.Name == w.WorkflowName || call.Name == "workflow_"+w.WorkflowName
}
