package history

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/qbit-ai/qbit-console/internal/events"
)

func TestMemoryStore_AppendAndRead(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	msg := events.Message{ID: "m1", SessionID: "s1", Role: "assistant", Content: "hello"}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("append message: %v", err)
	}
	rec := events.CommandBlockRecord{SessionID: "s1", Command: "ls", Output: "a.txt\n"}
	if err := s.AppendCommand(ctx, rec); err != nil {
		t.Fatalf("append command: %v", err)
	}

	msgs, err := s.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("messages = %+v", msgs)
	}
	cmds, err := s.Commands(ctx, "s1")
	if err != nil {
		t.Fatalf("commands: %v", err)
	}
	if len(cmds) != 1 || cmds[0].Command != "ls" {
		t.Fatalf("commands = %+v", cmds)
	}
}

func TestMemoryStore_SessionsIsolated(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.AppendMessage(ctx, events.Message{SessionID: "a", Content: "one"})
	_ = s.AppendMessage(ctx, events.Message{SessionID: "b", Content: "two"})

	msgs, _ := s.Messages(ctx, "a")
	if len(msgs) != 1 || msgs[0].Content != "one" {
		t.Fatalf("session a leaked: %+v", msgs)
	}
	empty, _ := s.Messages(ctx, "c")
	if len(empty) != 0 {
		t.Fatalf("unknown session returned %d messages", len(empty))
	}
}

func TestMemoryStore_ReadIsCopy(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.AppendMessage(ctx, events.Message{SessionID: "s1", Content: "keep"})

	msgs, _ := s.Messages(ctx, "s1")
	msgs[0].Content = "mutated"

	again, _ := s.Messages(ctx, "s1")
	if again[0].Content != "keep" {
		t.Fatalf("caller mutation leaked into the store")
	}
}

func TestExportHTML_InterleavesByTimestamp(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_ = s.AppendMessage(ctx, events.Message{
		SessionID: "s1", Role: "assistant", Content: "first **answer**", Timestamp: base,
	})
	_ = s.AppendCommand(ctx, events.CommandBlockRecord{
		SessionID: "s1", Command: "go vet ./...", Output: "ok", StartTime: base.Add(time.Minute),
	})
	_ = s.AppendMessage(ctx, events.Message{
		SessionID: "s1", Role: "assistant", Content: "second answer", Timestamp: base.Add(2 * time.Minute),
	})

	html, err := ExportHTML(ctx, s, "s1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	first := strings.Index(html, "first")
	cmd := strings.Index(html, "go vet")
	second := strings.Index(html, "second answer")
	if first < 0 || cmd < 0 || second < 0 {
		t.Fatalf("missing entries in transcript:\n%s", html)
	}
	if !(first < cmd && cmd < second) {
		t.Fatalf("entries out of order: %d %d %d", first, cmd, second)
	}
	if !strings.Contains(html, "<strong>answer</strong>") {
		t.Fatalf("markdown not rendered:\n%s", html)
	}
}

func TestExportHTML_EscapesCommandOutput(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.AppendCommand(ctx, events.CommandBlockRecord{
		SessionID: "s1", Command: "cat index.html", Output: "<script>alert(1)</script>",
	})

	html, err := ExportHTML(ctx, s, "s1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Fatalf("command output not escaped:\n%s", html)
	}
}

func TestExportHTML_EmptySession(t *testing.T) {
	t.Parallel()
	html, err := ExportHTML(context.Background(), NewMemoryStore(), "nothing")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if html == "" {
		t.Fatal("expected a page even for an empty session")
	}
}

func TestMemoryStore_NilReceiver(t *testing.T) {
	t.Parallel()
	var s *MemoryStore
	if err := s.AppendMessage(context.Background(), events.Message{SessionID: "s1"}); err != nil {
		t.Fatalf("nil store append: %v", err)
	}
	msgs, err := s.Messages(context.Background(), "s1")
	if err != nil || len(msgs) != 0 {
		t.Fatalf("nil store read = %v, %v", msgs, err)
	}
}
