package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

// chatFamily speaks the chat-completions format (Mistral and other
// OpenAI-compatible endpoints). The go-openai types define the wire shape.
type chatFamily struct{}

func (chatFamily) BuildRequest(ctx context.Context, p *Provider, apiKey, text string, gen Generation) (*http.Request, error) {
	body := openai.ChatCompletionRequest{
		Model: p.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: gen.Temperature,
		MaxTokens:   gen.MaxTokens,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return req, nil
}

func (chatFamily) ParseResponse(p *Provider, body []byte) (string, error) {
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return emptyReply(p), nil
	}
	return resp.Choices[0].Message.Content, nil
}

// ErrorDetail understands both the OpenAI envelope ({"error":{...}}) and the
// flat Mistral shape ({"object":"error","message":...,"type":...}).
func (chatFamily) ErrorDetail(body []byte) (string, string) {
	var envelope openai.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return envelope.Error.Type, envelope.Error.Message
	}
	if !gjson.ValidBytes(body) {
		return "", truncate(string(bytes.TrimSpace(body)), 300)
	}
	return gjson.GetBytes(body, "type").String(), gjson.GetBytes(body, "message").String()
}
