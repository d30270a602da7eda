package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned by Decode for event tags outside the closed set.
// Subscribers skip such events instead of failing the stream.
type ErrUnknownKind struct {
	Tag string
}

func (e ErrUnknownKind) Error() string {
	return fmt.Sprintf("unknown event kind: %q", e.Tag)
}

// decoders maps each wire tag to a constructor for its variant.
var decoders = map[Kind]func() Event{
	KindStarted:               func() Event { return &Started{} },
	KindTextDelta:             func() Event { return &TextDelta{} },
	KindToolRequest:           func() Event { return &ToolRequest{} },
	KindToolApprovalRequest:   func() Event { return &ToolApprovalRequest{} },
	KindToolAutoApproved:      func() Event { return &ToolAutoApproved{} },
	KindToolDenied:            func() Event { return &ToolDenied{} },
	KindToolResult:            func() Event { return &ToolResult{} },
	KindReasoning:             func() Event { return &Reasoning{} },
	KindCompleted:             func() Event { return &Completed{} },
	KindError:                 func() Event { return &Error{} },
	KindSystemHooks:           func() Event { return &SystemHooks{} },
	KindSubAgentStarted:       func() Event { return &SubAgentStarted{} },
	KindSubAgentToolRequest:   func() Event { return &SubAgentToolRequest{} },
	KindSubAgentToolResult:    func() Event { return &SubAgentToolResult{} },
	KindSubAgentCompleted:     func() Event { return &SubAgentCompleted{} },
	KindSubAgentError:         func() Event { return &SubAgentError{} },
	KindWorkflowStarted:       func() Event { return &WorkflowStarted{} },
	KindWorkflowStepStarted:   func() Event { return &WorkflowStepStarted{} },
	KindWorkflowStepCompleted: func() Event { return &WorkflowStepCompleted{} },
	KindWorkflowCompleted:     func() Event { return &WorkflowCompleted{} },
	KindWorkflowError:         func() Event { return &WorkflowError{} },
	KindPlanUpdated:           func() Event { return &PlanUpdated{} },
	KindContextPruned:         func() Event { return &ContextPruned{} },
	KindContextWarning:        func() Event { return &ContextWarning{} },
	KindToolResponseTruncated: func() Event { return &ToolResponseTruncated{} },
	KindLoopWarning:           func() Event { return &LoopWarning{} },
	KindLoopBlocked:           func() Event { return &LoopBlocked{} },
	KindMaxIterationsReached:  func() Event { return &MaxIterationsReached{} },
	KindCommandBlock:          func() Event { return &CommandBlock{} },
	KindTerminalOutput:        func() Event { return &TerminalOutput{} },
	KindAlternateScreen:       func() Event { return &AlternateScreen{} },
	KindDirectoryChanged:      func() Event { return &DirectoryChanged{} },
	KindSessionEnded:          func() Event { return &SessionEnded{} },
}

// Decode turns one wire frame into its typed variant. The frame is a flat
// JSON object tagged with "type"; the remaining keys are the payload.
func Decode(raw []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	tag := strings.TrimSpace(envelope.Type)
	if tag == "" {
		return nil, fmt.Errorf("event missing type tag")
	}
	construct, ok := decoders[Kind(tag)]
	if !ok {
		return nil, ErrUnknownKind{Tag: tag}
	}
	ev := construct()
	if err := json.Unmarshal(raw, ev); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", tag, err)
	}
	return ev, nil
}

// Encode produces the flat wire frame for an event.
func Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("nil event")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	// Splice the type tag into the flat object.
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(string(ev.EventKind()))
	if err != nil {
		return nil, err
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage, 1)
	}
	obj["type"] = tag
	return json.Marshal(obj)
}
