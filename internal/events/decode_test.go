package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode_DispatchesByTag(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		raw  string
		want Kind
	}{
		{"started", `{"type":"started","session_id":"s1","turn_id":"t1"}`, KindStarted},
		{"text_delta", `{"type":"text_delta","session_id":"s1","delta":"hi"}`, KindTextDelta},
		{"tool_request", `{"type":"tool_request","session_id":"s1","request_id":"r1","tool_name":"read_file","args":{"path":"a.go"}}`, KindToolRequest},
		{"completed", `{"type":"completed","session_id":"s1","response":"done","tokens_used":12}`, KindCompleted},
		{"command_block", `{"type":"command_block","session_id":"s1","command":"ls","exit_code":0,"event_type":"command_end"}`, KindCommandBlock},
		{"sub_agent_started", `{"type":"sub_agent_started","session_id":"s1","agent_id":"a1"}`, KindSubAgentStarted},
		{"plan_updated", `{"type":"plan_updated","session_id":"s1","plan":{"version":1}}`, KindPlanUpdated},
		{"context_pruned", `{"type":"context_pruned","session_id":"s1","messages_removed":4,"utilization_before":0.94,"utilization_after":0.61}`, KindContextPruned},
		{"loop_blocked", `{"type":"loop_blocked","session_id":"s1","tool_name":"grep","repeat_count":8,"max_count":8,"message":"blocked"}`, KindLoopBlocked},
		{"max_iterations_reached", `{"type":"max_iterations_reached","session_id":"s1","iterations":50,"max_iterations":50,"message":"cap"}`, KindMaxIterationsReached},
		{"session_ended", `{"type":"session_ended","session_id":"s1"}`, KindSessionEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ev, err := Decode([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if ev.EventKind() != tc.want {
				t.Fatalf("kind = %q, want %q", ev.EventKind(), tc.want)
			}
			if ev.Session() != "s1" {
				t.Fatalf("session = %q", ev.Session())
			}
		})
	}
}

func TestDecode_PayloadFields(t *testing.T) {
	t.Parallel()
	raw := `{"type":"tool_request","session_id":"s1","request_id":"r1","tool_name":"write_file","args":{"path":"b.go","content":"x"}}`
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	req, ok := ev.(*ToolRequest)
	if !ok {
		t.Fatalf("decoded %T", ev)
	}
	if req.RequestID != "r1" || req.ToolName != "write_file" {
		t.Fatalf("fields = %+v", req)
	}
	var args map[string]string
	if err := json.Unmarshal(req.Args, &args); err != nil {
		t.Fatalf("args: %v", err)
	}
	if args["path"] != "b.go" {
		t.Fatalf("args = %v", args)
	}
}

func TestDecode_NullableExitCode(t *testing.T) {
	t.Parallel()
	ev, err := Decode([]byte(`{"type":"command_block","session_id":"s1","command":"vim","exit_code":null,"event_type":"command_end"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cb := ev.(*CommandBlock)
	if cb.ExitCode != nil {
		t.Fatalf("exit code = %v, want nil", *cb.ExitCode)
	}

	ev, err = Decode([]byte(`{"type":"command_block","session_id":"s1","command":"false","exit_code":1,"event_type":"command_end"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cb = ev.(*CommandBlock)
	if cb.ExitCode == nil || *cb.ExitCode != 1 {
		t.Fatalf("exit code = %v, want 1", cb.ExitCode)
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	t.Parallel()
	_, err := Decode([]byte(`{"type":"telemetry_ping","session_id":"s1"}`))
	var unknown ErrUnknownKind
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if unknown.Tag != "telemetry_ping" {
		t.Fatalf("tag = %q", unknown.Tag)
	}
}

func TestDecode_MissingTag(t *testing.T) {
	t.Parallel()
	if _, err := Decode([]byte(`{"session_id":"s1"}`)); err == nil {
		t.Fatal("expected error for missing type tag")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()
	in := &TextDelta{Meta: Meta{SessionID: "s1"}, Delta: "hello"}
	raw, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		t.Fatalf("frame not a flat object: %v", err)
	}
	if obj["type"] != "text_delta" {
		t.Fatalf("type tag = %v", obj["type"])
	}

	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	back, ok := out.(*TextDelta)
	if !ok {
		t.Fatalf("decoded %T", out)
	}
	if back.Delta != "hello" || back.Session() != "s1" {
		t.Fatalf("round trip = %+v", back)
	}
}

func TestEncode_NilEvent(t *testing.T) {
	t.Parallel()
	if _, err := Encode(nil); err == nil {
		t.Fatal("expected error for nil event")
	}
}
