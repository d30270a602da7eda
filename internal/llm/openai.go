package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"

	"github.com/qbit-ai/qbit-console/internal/events"
)

func (c *Client) openaiSDK() openai.Client {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(strings.TrimSpace(c.APIKey)),
	}
	if base := strings.TrimSpace(c.BaseURL); base != "" {
		opts = append(opts, openaioption.WithBaseURL(base))
	}
	if c.HTTPClient != nil {
		opts = append(opts, openaioption.WithHTTPClient(c.HTTPClient))
	}
	return openai.NewClient(opts...)
}

func (c *Client) streamOpenAI(ctx context.Context, req TurnRequest, emit Emit) error {
	meta := events.Meta{SessionID: req.SessionID}
	model := c.resolvedModel(req)
	if model == "" {
		return emitError(emit, req.SessionID, errModelRequired)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if max := c.resolvedMaxTokens(req, 0); max > 0 {
		params.MaxCompletionTokens = openai.Int(int64(max))
	}

	emit(&events.Started{Meta: meta, TurnID: req.TurnID})

	client := c.openaiSDK()
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				emit(&events.TextDelta{Meta: meta, Delta: delta})
			}
		}
		if tool, ok := acc.JustFinishedToolCall(); ok {
			emit(&events.ToolRequest{
				Meta:      meta,
				RequestID: tool.ID,
				ToolName:  tool.Name,
				Args:      json.RawMessage(tool.Arguments),
			})
		}
	}
	if err := stream.Err(); err != nil {
		return emitError(emit, req.SessionID, err)
	}

	var response string
	if len(acc.Choices) > 0 {
		response = acc.Choices[0].Message.Content
	}
	emit(&events.Completed{
		Meta:       meta,
		Response:   response,
		TokensUsed: int(acc.Usage.CompletionTokens),
	})
	return nil
}
