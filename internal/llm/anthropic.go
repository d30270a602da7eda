package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/qbit-ai/qbit-console/internal/events"
)

const (
	defaultAnthropicBaseURL   = "https://api.anthropic.com"
	defaultAnthropicMaxTokens = 4096
)

func (c *Client) anthropicSDK() anthropic.Client {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(strings.TrimSpace(c.APIKey)),
		anthropicoption.WithBaseURL(resolvedAnthropicBaseURL(c.BaseURL)),
	}
	if c.HTTPClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(c.HTTPClient))
	}
	return anthropic.NewClient(opts...)
}

func resolvedAnthropicBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/v1")
	base = strings.TrimRight(base, "/")
	return base + "/"
}

func (c *Client) streamAnthropic(ctx context.Context, req TurnRequest, emit Emit) error {
	meta := events.Meta{SessionID: req.SessionID}
	model := c.resolvedModel(req)
	if model == "" {
		return emitError(emit, req.SessionID, errModelRequired)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(c.resolvedMaxTokens(req, defaultAnthropicMaxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	emit(&events.Started{Meta: meta, TurnID: req.TurnID})

	client := c.anthropicSDK()
	stream := client.Messages.NewStreaming(ctx, params)
	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return emitError(emit, req.SessionID, err)
		}
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				emit(&events.TextDelta{Meta: meta, Delta: delta.Text})
			case anthropic.ThinkingDelta:
				emit(&events.Reasoning{Meta: meta, Content: delta.Thinking})
			}
		case anthropic.ContentBlockStopEvent:
			// Tool input streams as JSON deltas; once the block closes the
			// accumulated message has the complete arguments, so the
			// tool_request is emitted here to keep its stream position.
			idx := int(eventVariant.Index)
			if idx >= 0 && idx < len(message.Content) {
				if tool, ok := message.Content[idx].AsAny().(anthropic.ToolUseBlock); ok {
					emit(&events.ToolRequest{
						Meta:      meta,
						RequestID: tool.ID,
						ToolName:  tool.Name,
						Args:      tool.Input,
					})
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return emitError(emit, req.SessionID, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	emit(&events.Completed{
		Meta:       meta,
		Response:   text.String(),
		TokensUsed: int(message.Usage.OutputTokens),
	})
	return nil
}
