// Package llm provides the provider catalog, wire-format adapters, per-provider
// availability tracking and the failover controller that relays user text to
// the active provider.
package llm

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// FamilyKind identifies a wire-format family shared by several providers
type FamilyKind string

const (
	FamilyChat     FamilyKind = "chat"     // chat-completions: messages in, choices[0].message.content out
	FamilyGenerate FamilyKind = "generate" // generate-content: contents in, candidates[0].content.parts[0].text out
)

// Provider is an immutable catalog entry
type Provider struct {
	Name       string     `yaml:"name" json:"name"`
	Family     FamilyKind `yaml:"family" json:"family"`
	Endpoint   string     `yaml:"endpoint" json:"endpoint"`
	Model      string     `yaml:"model" json:"model"`
	Credential string     `yaml:"credential" json:"credential"` // key looked up in CredentialSource
	CatchAll   bool       `yaml:"catchAll" json:"catchAll"`     // always last, always available
}

// CredentialSource resolves a credential key (e.g. "GEMINI_API_KEY") to a secret.
// Returns "" when the key is not configured.
type CredentialSource func(key string) string

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Providers []Provider `yaml:"providers"`
}

// Catalog is the ordered provider registry. Order defines fallback priority.
type Catalog struct {
	providers []*Provider
	byName    map[string]*Provider
	catchAll  *Provider
}

// DefaultCatalog returns the built-in catalog
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// ParseCatalog parses a YAML catalog document
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(f.Providers)
}

// NewCatalog validates and builds a catalog. Exactly one entry must be the
// catch-all and it must be the last one.
func NewCatalog(list []Provider) (*Catalog, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	c := &Catalog{
		providers: make([]*Provider, 0, len(list)),
		byName:    make(map[string]*Provider, len(list)),
	}

	for i := range list {
		p := list[i]
		if p.Name == "" {
			return nil, fmt.Errorf("catalog entry %d has no name", i)
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.Name)
		}
		if p.Endpoint == "" {
			return nil, fmt.Errorf("provider %q has no endpoint", p.Name)
		}
		switch p.Family {
		case FamilyChat, FamilyGenerate:
		default:
			return nil, fmt.Errorf("provider %q has unknown family %q", p.Name, p.Family)
		}
		if p.CatchAll {
			if c.catchAll != nil {
				return nil, fmt.Errorf("more than one catch-all provider (%s, %s)", c.catchAll.Name, p.Name)
			}
			if i != len(list)-1 {
				return nil, fmt.Errorf("catch-all provider %q must be last", p.Name)
			}
		}

		pp := &p
		c.providers = append(c.providers, pp)
		c.byName[p.Name] = pp
		if p.CatchAll {
			c.catchAll = pp
		}
	}

	if c.catchAll == nil {
		return nil, fmt.Errorf("catalog has no catch-all provider")
	}
	return c, nil
}

// Providers returns the entries in priority order
func (c *Catalog) Providers() []*Provider {
	out := make([]*Provider, len(c.providers))
	copy(out, c.providers)
	return out
}

// Lookup finds a provider by name
func (c *Catalog) Lookup(name string) (*Provider, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// CatchAll returns the catch-all provider
func (c *Catalog) CatchAll() *Provider {
	return c.catchAll
}

// First returns the highest-priority provider
func (c *Catalog) First() *Provider {
	return c.providers[0]
}

// Len returns the number of providers
func (c *Catalog) Len() int {
	return len(c.providers)
}
