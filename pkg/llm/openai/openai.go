// Package openai parses the OpenAI chat completion wire format spoken on
// both sides of the relay.
package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kgourjau/BridgeAI/pkg/llm"
)

// ErrInvalidContent is returned for a message content that is neither a
// string nor an array of parts.
var ErrInvalidContent = errors.New("message content must be a string or an array of parts")

// ParseRequest converts an inbound chat completion request. The payload is
// kept as RawRequest.
func ParseRequest(payload []byte) (*llm.ChatRequest, error) {
	var req openaiRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for i, msg := range req.Messages {
		converted, err := convertMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		messages = append(messages, converted)
	}

	var stop []string
	switch s := req.Stop.(type) {
	case string:
		stop = []string{s}
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok {
				stop = append(stop, str)
			}
		}
	}

	return &llm.ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        stop,
		Seed:        req.Seed,
		RawRequest:  payload,
	}, nil
}

// ParseResponse converts a non-streamed chat completion response.
func ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp openaiResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}

	result := &llm.ChatResponse{
		ID:          resp.ID,
		Model:       resp.Model,
		RawResponse: payload,
	}
	if resp.Created > 0 {
		result.CreatedAt = time.Unix(resp.Created, 0)
	}
	if resp.Usage != nil {
		result.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	if len(resp.Choices) == 0 {
		return result, nil
	}

	choice := resp.Choices[0]
	msg, err := convertMessage(choice.Message)
	if err != nil {
		return nil, fmt.Errorf("choice 0: %w", err)
	}
	result.Message = msg
	result.StopReason = choice.FinishReason

	return result, nil
}

// ParseStreamChunk extracts the first choice's delta from one
// chat.completion.chunk payload. Paths are read with gjson so a chunk is
// never fully decoded.
func ParseStreamChunk(payload []byte) (*llm.StreamChunk, error) {
	if !gjson.ValidBytes(payload) {
		return nil, errors.New("invalid stream chunk")
	}

	fields := gjson.GetManyBytes(payload,
		"id",
		"model",
		"choices.0.delta.content",
		"choices.0.finish_reason",
		"usage",
	)

	chunk := &llm.StreamChunk{
		ID:           fields[0].String(),
		Model:        fields[1].String(),
		Content:      fields[2].String(),
		FinishReason: fields[3].String(),
	}

	if u := fields[4]; u.IsObject() {
		chunk.Usage = &llm.Usage{
			PromptTokens:     int(u.Get("prompt_tokens").Int()),
			CompletionTokens: int(u.Get("completion_tokens").Int()),
			TotalTokens:      int(u.Get("total_tokens").Int()),
		}
	}

	return chunk, nil
}

func convertMessage(msg openaiMessage) (llm.Message, error) {
	converted := llm.Message{Role: msg.Role}

	content := gjson.ParseBytes(msg.Content)
	switch {
	case len(msg.Content) == 0, content.Type == gjson.Null:
		// Empty content (can happen with tool calls)
		converted.Content = []llm.ContentBlock{}
	case content.Type == gjson.String:
		converted.Content = []llm.ContentBlock{{Type: "text", Text: content.String()}}
	case content.IsArray():
		var parts []openaiContentPart
		if err := json.Unmarshal(msg.Content, &parts); err != nil {
			return llm.Message{}, err
		}
		for _, part := range parts {
			cb := llm.ContentBlock{Type: part.Type, Text: part.Text}
			if part.ImageURL != nil {
				cb.Type = "image"
				cb.ImageURL = part.ImageURL.URL
			}
			converted.Content = append(converted.Content, cb)
		}
	default:
		return llm.Message{}, ErrInvalidContent
	}

	for _, tc := range msg.ToolCalls {
		converted.Content = append(converted.Content, llm.ContentBlock{
			Type:      "tool_use",
			ToolUseID: tc.ID,
			ToolName:  tc.Function.Name,
			ToolInput: tc.Function.Arguments,
		})
	}

	if msg.Role == "tool" && msg.ToolCallID != "" {
		converted.Content = []llm.ContentBlock{{
			Type:         "tool_result",
			ToolResultID: msg.ToolCallID,
			Text:         content.String(),
		}}
	}

	return converted, nil
}
