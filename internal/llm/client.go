// Package llm is the in-process event producer: it drives one streaming
// model turn and emits the same event kinds the remote stream carries, so
// the reconciliation engine cannot tell local and remote turns apart.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/qbit-ai/qbit-console/internal/events"
)

// Provider selects the streaming backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

func ParseProvider(raw string) (Provider, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "", string(ProviderAnthropic):
		return ProviderAnthropic, nil
	case string(ProviderOpenAI):
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unsupported provider %q (supported: %q, %q)", raw, ProviderAnthropic, ProviderOpenAI)
	}
}

// TurnRequest is one streaming turn. SessionID tags every emitted event;
// System and Prompt become the request messages.
type TurnRequest struct {
	SessionID string
	TurnID    string
	System    string
	Prompt    string
	Model     string
	MaxTokens int
}

// Emit receives each event as the stream produces it, on the streaming
// goroutine, in order.
type Emit func(ev events.Event)

type Client struct {
	Provider   Provider
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

// StreamTurn runs one turn and emits started, text_delta, reasoning,
// tool_request, then completed or error. The returned error mirrors the
// terminal error event so callers can also fail fast.
func (c *Client) StreamTurn(ctx context.Context, req TurnRequest, emit Emit) error {
	if c == nil {
		return errors.New("nil client")
	}
	if emit == nil {
		return errors.New("emit callback is required")
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return errors.New("session id is required")
	}
	switch c.Provider {
	case ProviderAnthropic, "":
		return c.streamAnthropic(ctx, req, emit)
	case ProviderOpenAI:
		return c.streamOpenAI(ctx, req, emit)
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
}

// emitError classifies the failure so the engine's system message carries a
// usable error type, then reports it as the turn-terminal event.
func emitError(emit Emit, sessionID string, err error) error {
	kind := "api"
	switch {
	case IsLikelyContextOverflowError(err):
		kind = "context_overflow"
	case IsLikelyRateLimitError(err):
		kind = "rate_limit"
	}
	emit(&events.Error{
		Meta:      events.Meta{SessionID: sessionID},
		Message:   err.Error(),
		ErrorType: kind,
	})
	return err
}

func (c *Client) resolvedModel(req TurnRequest) string {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = strings.TrimSpace(c.Model)
	}
	return model
}

func (c *Client) resolvedMaxTokens(req TurnRequest, fallback int) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return fallback
}
