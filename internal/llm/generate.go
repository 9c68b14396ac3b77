package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// generateFamily speaks the generate-content format (Gemini).
type generateFamily struct{}

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig generationConfig  `json:"generationConfig"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
	Role  string         `json:"role"`
}

type generatePart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

func (generateFamily) BuildRequest(ctx context.Context, p *Provider, apiKey, text string, gen Generation) (*http.Request, error) {
	body := generateRequest{
		Contents: []generateContent{
			{Parts: []generatePart{{Text: text}}, Role: "user"},
		},
		GenerationConfig: generationConfig{
			Temperature:     gen.Temperature,
			MaxOutputTokens: gen.MaxTokens,
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)
	return req, nil
}

func (generateFamily) ParseResponse(p *Provider, body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("decode generate response: invalid JSON")
	}
	text := gjson.GetBytes(body, "candidates.0.content.parts.0.text")
	if !text.Exists() || text.String() == "" {
		return emptyReply(p), nil
	}
	return text.String(), nil
}

func (generateFamily) ErrorDetail(body []byte) (string, string) {
	if !gjson.ValidBytes(body) {
		return "", truncate(string(bytes.TrimSpace(body)), 300)
	}
	return gjson.GetBytes(body, "error.status").String(), gjson.GetBytes(body, "error.message").String()
}
