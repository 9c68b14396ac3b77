package llm

import (
	"context"
	"fmt"
	"net/http"
)

// Generation holds the sampling parameters sent with every request
type Generation struct {
	Temperature float32
	MaxTokens   int
}

// Family adapts one wire format: how a request is built, how the reply text is
// extracted and where the provider puts its error description.
type Family interface {
	BuildRequest(ctx context.Context, p *Provider, apiKey, text string, gen Generation) (*http.Request, error)
	ParseResponse(p *Provider, body []byte) (string, error)
	ErrorDetail(body []byte) (status, message string)
}

var families = map[FamilyKind]Family{
	FamilyChat:     chatFamily{},
	FamilyGenerate: generateFamily{},
}

// FamilyFor returns the adapter for a wire-format family
func FamilyFor(kind FamilyKind) (Family, error) {
	f, ok := families[kind]
	if !ok {
		return nil, fmt.Errorf("unknown provider family: %s", kind)
	}
	return f, nil
}

// emptyReply is the text used when a successful response has no extractable text
func emptyReply(p *Provider) string {
	return "Нет ответа от " + p.Name
}
