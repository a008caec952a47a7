// File: internal/server/types.go
package server

import (
	"context"

	"github.com/xkilldash9x/suture/api/schemas"
)

// Response is the envelope every API endpoint answers with.
type Response struct {
	Status string      `json:"status"` // "success" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// NavigateRequest loads a page. Relative paths are joined to the site base URL.
type NavigateRequest struct {
	URL string `json:"url"`
}

// ResolveRequest heals a selector that no longer matches.
type ResolveRequest struct {
	Selector string `json:"selector"`
	// TimeoutMS is the wait per candidate. Zero uses the configured default.
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

// SuggestRequest asks for selectors matching a plain-language description.
type SuggestRequest struct {
	Description string `json:"description"`
}

// HistoryEntry is one healed selector and its replacements, most recent first.
type HistoryEntry struct {
	Selector     string   `json:"selector"`
	Replacements []string `json:"replacements"`
}

// HistoryReader is the read side of the selector history.
type HistoryReader interface {
	Lookup(original string) []string
	Selectors() []string
}

// Suggester proposes selectors for an element description.
type Suggester func(ctx context.Context, description string) ([]schemas.SuggestedSelector, error)
