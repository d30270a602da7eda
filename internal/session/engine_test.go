package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/qbit-ai/qbit-console/internal/events"
	"github.com/qbit-ai/qbit-console/internal/history"
)

func newTestEngine(t *testing.T) (*Engine, *[]events.Message) {
	t.Helper()
	var messages []events.Message
	var seq int
	e := NewEngine(Options{
		Store: history.NewMemoryStore(),
		Now:   func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func(prefix string) string {
			seq++
			return fmt.Sprintf("%s-%d", prefix, seq)
		},
		OnMessage: func(msg events.Message) { messages = append(messages, msg) },
	})
	return e, &messages
}

func meta(sessionID string) events.Meta {
	return events.Meta{SessionID: sessionID}
}

func TestHandleEvent_BasicTurn(t *testing.T) {
	t.Parallel()
	e, messages := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	e.HandleEvent(ctx, &events.TextDelta{Meta: meta("s1"), Delta: "Hello"})
	e.HandleEvent(ctx, &events.ToolRequest{Meta: meta("s1"), RequestID: "t1", ToolName: "read_file"})
	e.HandleEvent(ctx, &events.ToolResult{Meta: meta("s1"), RequestID: "t1", Success: true, Result: []byte(`"ok"`)})
	e.HandleEvent(ctx, &events.Completed{Meta: meta("s1"), Response: "Hello"})

	if len(*messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(*messages))
	}
	msg := (*messages)[0]
	if msg.Content != "Hello" {
		t.Fatalf("content = %q, want %q", msg.Content, "Hello")
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "t1" {
		t.Fatalf("tool calls = %+v", msg.ToolCalls)
	}
	if msg.ToolCalls[0].Status != events.ToolCompleted {
		t.Fatalf("tool status = %q, want completed", msg.ToolCalls[0].Status)
	}
	if string(msg.ToolCalls[0].Result) != `"ok"` {
		t.Fatalf("tool result = %s", msg.ToolCalls[0].Result)
	}
	if len(msg.StreamingHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(msg.StreamingHistory))
	}
	if msg.StreamingHistory[0].Kind != events.TimelineText || msg.StreamingHistory[0].Text != "Hello" {
		t.Fatalf("history[0] = %+v", msg.StreamingHistory[0])
	}
	if msg.StreamingHistory[1].Kind != events.TimelineTool || msg.StreamingHistory[1].Tool.ID != "t1" {
		t.Fatalf("history[1] = %+v", msg.StreamingHistory[1])
	}
}

func TestHandleEvent_OrderPreserved(t *testing.T) {
	t.Parallel()
	e, messages := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	e.HandleEvent(ctx, &events.TextDelta{Meta: meta("s1"), Delta: "first "})
	e.HandleEvent(ctx, &events.ToolRequest{Meta: meta("s1"), RequestID: "a", ToolName: "one"})
	e.HandleEvent(ctx, &events.TextDelta{Meta: meta("s1"), Delta: "second"})
	e.HandleEvent(ctx, &events.ToolRequest{Meta: meta("s1"), RequestID: "b", ToolName: "two"})
	e.HandleEvent(ctx, &events.Completed{Meta: meta("s1")})

	msg := (*messages)[0]
	kinds := make([]events.TimelineKind, 0, len(msg.StreamingHistory))
	for _, item := range msg.StreamingHistory {
		kinds = append(kinds, item.Kind)
	}
	want := []events.TimelineKind{events.TimelineText, events.TimelineTool, events.TimelineText, events.TimelineTool}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}

func TestHandleEvent_DuplicateRequestIdempotent(t *testing.T) {
	t.Parallel()
	e, messages := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	e.HandleEvent(ctx, &events.ToolRequest{Meta: meta("s1"), RequestID: "t1", ToolName: "read_file"})
	e.HandleEvent(ctx, &events.ToolRequest{Meta: meta("s1"), RequestID: "t1", ToolName: "read_file"})
	e.HandleEvent(ctx, &events.ToolApprovalRequest{Meta: meta("s1"), RequestID: "t1", ToolName: "read_file"})
	e.HandleEvent(ctx, &events.ToolAutoApproved{Meta: meta("s1"), RequestID: "t1", ToolName: "read_file"})
	e.HandleEvent(ctx, &events.Completed{Meta: meta("s1")})

	msg := (*messages)[0]
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call after duplicates, got %d", len(msg.ToolCalls))
	}
}

func TestHandleEvent_SessionFallback(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	// Untagged events land on the last active session.
	e.HandleEvent(ctx, &events.TextDelta{Delta: "hi"})
	e.HandleEvent(ctx, &events.TextDelta{Meta: meta("unknown"), Delta: " there"})

	snap, ok := e.Snapshot("s1")
	if !ok {
		t.Fatalf("missing session")
	}
	if snap.StreamingText != "hi there" {
		t.Fatalf("streaming text = %q", snap.StreamingText)
	}
}

func TestHandleEvent_UnknownSessionDropped(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// No sessions at all: nothing to fall back to, nothing panics.
	e.HandleEvent(ctx, &events.TextDelta{Meta: meta("ghost"), Delta: "hi"})
	if got := len(e.Sessions()); got != 0 {
		t.Fatalf("sessions = %d, want 0", got)
	}
}

func TestHandleEvent_EmptyTurnProducesNoMessage(t *testing.T) {
	t.Parallel()
	e, messages := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	e.HandleEvent(ctx, &events.Completed{Meta: meta("s1")})

	if len(*messages) != 0 {
		t.Fatalf("empty turn produced %d messages", len(*messages))
	}
	snap, _ := e.Snapshot("s1")
	if snap.TurnActive {
		t.Fatalf("turn still active after completion")
	}
}

func TestHandleEvent_ErrorBecomesSystemMessage(t *testing.T) {
	t.Parallel()
	e, messages := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	e.HandleEvent(ctx, &events.TextDelta{Meta: meta("s1"), Delta: "partial"})
	e.HandleEvent(ctx, &events.Error{Meta: meta("s1"), Message: "model overloaded"})

	if len(*messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(*messages))
	}
	msg := (*messages)[0]
	if msg.Role != "system" || msg.Content != "model overloaded" {
		t.Fatalf("message = %+v", msg)
	}
	snap, _ := e.Snapshot("s1")
	if snap.StreamingText != "" {
		t.Fatalf("streaming state not cleared: %q", snap.StreamingText)
	}
}

func TestHandleEvent_ToolDenied(t *testing.T) {
	t.Parallel()
	e, messages := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	e.HandleEvent(ctx, &events.ToolApprovalRequest{Meta: meta("s1"), RequestID: "t1", ToolName: "exec"})

	snap, _ := e.Snapshot("s1")
	if snap.PendingApproval == nil || snap.PendingApproval.RequestID != "t1" {
		t.Fatalf("pending approval = %+v", snap.PendingApproval)
	}

	e.HandleEvent(ctx, &events.ToolDenied{Meta: meta("s1"), RequestID: "t1", Reason: "too risky"})

	snap, _ = e.Snapshot("s1")
	if snap.PendingApproval != nil {
		t.Fatalf("approval not cleared after denial")
	}

	e.HandleEvent(ctx, &events.Completed{Meta: meta("s1")})
	msg := (*messages)[0]
	if msg.ToolCalls[0].Status != events.ToolError {
		t.Fatalf("denied call status = %q", msg.ToolCalls[0].Status)
	}
}

func TestHandleEvent_WorkflowFilteredFromHistory(t *testing.T) {
	t.Parallel()
	e, messages := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	e.HandleEvent(ctx, &events.WorkflowStarted{Meta: meta("s1"), WorkflowID: "w1", WorkflowName: "git_commit"})
	e.HandleEvent(ctx, &events.ToolRequest{Meta: meta("s1"), RequestID: "t1", ToolName: "git_commit"})
	e.HandleEvent(ctx, &events.ToolRequest{
		Meta: meta("s1"), RequestID: "t2", ToolName: "run_git",
		Source: events.ToolSource{Type: events.SourceWorkflow, WorkflowID: "w1"},
	})
	e.HandleEvent(ctx, &events.ToolRequest{Meta: meta("s1"), RequestID: "t3", ToolName: "read_file"})
	e.HandleEvent(ctx, &events.WorkflowStepStarted{Meta: meta("s1"), WorkflowID: "w1", StepName: "analyze"})
	e.HandleEvent(ctx, &events.WorkflowCompleted{Meta: meta("s1"), WorkflowID: "w1", FinalOutput: "done"})
	e.HandleEvent(ctx, &events.Completed{Meta: meta("s1")})

	msg := (*messages)[0]
	if msg.Workflow == nil || !msg.Workflow.Done || msg.Workflow.FinalOutput != "done" {
		t.Fatalf("workflow = %+v", msg.Workflow)
	}
	if len(msg.Workflow.ToolCalls) != 1 || msg.Workflow.ToolCalls[0].ID != "t2" {
		t.Fatalf("workflow tool calls = %+v", msg.Workflow.ToolCalls)
	}
	// Invocation call and workflow-sourced call are rendered by the workflow
	// tree; only the unrelated call stays in history.
	if len(msg.StreamingHistory) != 1 || msg.StreamingHistory[0].Tool.ID != "t3" {
		t.Fatalf("history = %+v", msg.StreamingHistory)
	}

	snap, _ := e.Snapshot("s1")
	if snap.Workflow != nil {
		t.Fatalf("active workflow not cleared after finalization")
	}
}

func TestHandleEvent_UnsettledCallsCollapseAtCompletion(t *testing.T) {
	t.Parallel()
	e, messages := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	e.HandleEvent(ctx, &events.ToolRequest{Meta: meta("s1"), RequestID: "t1", ToolName: "slow"})
	e.HandleEvent(ctx, &events.ToolAutoApproved{Meta: meta("s1"), RequestID: "t2", ToolName: "quick"})
	e.HandleEvent(ctx, &events.ToolApprovalRequest{Meta: meta("s1"), RequestID: "t3", ToolName: "gated"})
	e.HandleEvent(ctx, &events.ToolRequest{Meta: meta("s1"), RequestID: "t4", ToolName: "broken"})
	e.HandleEvent(ctx, &events.ToolResult{Meta: meta("s1"), RequestID: "t4", Success: false})
	e.HandleEvent(ctx, &events.Completed{Meta: meta("s1"), Response: "bye"})

	msg := (*messages)[0]
	if len(msg.ToolCalls) != 4 {
		t.Fatalf("tool calls = %d", len(msg.ToolCalls))
	}
	// Every call the turn left unsettled persists as completed; settled
	// errors keep their status.
	for _, call := range msg.ToolCalls[:3] {
		if call.Status != events.ToolCompleted {
			t.Fatalf("call %s persisted with status %q, want completed", call.ID, call.Status)
		}
	}
	if msg.ToolCalls[3].Status != events.ToolError {
		t.Fatalf("errored call persisted with status %q", msg.ToolCalls[3].Status)
	}
	if msg.Content != "bye" {
		t.Fatalf("content fallback = %q, want response text", msg.Content)
	}
}

func TestHandleEvent_AdvisoryNoticesLeaveTurnIntact(t *testing.T) {
	t.Parallel()
	e, messages := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	e.HandleEvent(ctx, &events.TextDelta{Meta: meta("s1"), Delta: "steady"})
	e.HandleEvent(ctx, &events.ContextWarning{Meta: meta("s1"), Utilization: 0.92, TotalTokens: 184000, MaxTokens: 200000})
	e.HandleEvent(ctx, &events.LoopBlocked{Meta: meta("s1"), ToolName: "grep", RepeatCount: 8, MaxCount: 8})
	e.HandleEvent(ctx, &events.ContextPruned{Meta: meta("s1"), MessagesRemoved: 4})
	e.HandleEvent(ctx, &events.Completed{Meta: meta("s1")})

	if len(*messages) != 1 {
		t.Fatalf("messages = %d", len(*messages))
	}
	msg := (*messages)[0]
	if msg.Content != "steady" {
		t.Fatalf("content = %q", msg.Content)
	}
	if len(msg.StreamingHistory) != 1 || msg.StreamingHistory[0].Kind != events.TimelineText {
		t.Fatalf("history = %+v", msg.StreamingHistory)
	}
}

func TestHandleEvent_SessionEnded(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.SessionEnded{Meta: meta("s1")})
	if _, ok := e.Snapshot("s1"); ok {
		t.Fatalf("session survived session_ended")
	}
}

func TestHandleEvent_PlanVersioning(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.PlanUpdated{Meta: meta("s1"), Plan: events.Plan{
		Version: 2,
		Steps:   []events.PlanStep{{Step: "a", Status: events.StepCompleted}, {Step: "b", Status: events.StepPending}},
	}})
	e.HandleEvent(ctx, &events.PlanUpdated{Meta: meta("s1"), Plan: events.Plan{
		Version: 2,
		Steps:   []events.PlanStep{{Step: "stale", Status: events.StepPending}},
	}})
	e.HandleEvent(ctx, &events.PlanUpdated{Meta: meta("s1"), Plan: events.Plan{
		Version: 1,
		Steps:   []events.PlanStep{{Step: "older", Status: events.StepPending}},
	}})

	snap, _ := e.Snapshot("s1")
	if snap.Plan == nil || snap.Plan.Version != 2 {
		t.Fatalf("plan = %+v", snap.Plan)
	}
	if len(snap.Plan.Steps) != 2 || snap.Plan.Steps[0].Step != "a" {
		t.Fatalf("plan steps = %+v", snap.Plan.Steps)
	}
	if snap.Plan.Summary.Completed != 1 || snap.Plan.Summary.Pending != 1 {
		t.Fatalf("plan summary = %+v", snap.Plan.Summary)
	}
}

func TestHandleEvent_StartedClearsInterruptedTurn(t *testing.T) {
	t.Parallel()
	e, messages := newTestEngine(t)
	e.OpenSession("s1")
	ctx := context.Background()

	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	e.HandleEvent(ctx, &events.TextDelta{Meta: meta("s1"), Delta: "abandoned"})
	e.HandleEvent(ctx, &events.Started{Meta: meta("s1")})
	e.HandleEvent(ctx, &events.TextDelta{Meta: meta("s1"), Delta: "kept"})
	e.HandleEvent(ctx, &events.Completed{Meta: meta("s1")})

	if len(*messages) != 1 {
		t.Fatalf("messages = %d", len(*messages))
	}
	if (*messages)[0].Content != "kept" {
		t.Fatalf("content = %q", (*messages)[0].Content)
	}
}
