package schemas

import (
	"context"
	"errors"
	"time"
)

// -- Document Interfaces --

var (
	// ErrElementNotFound is returned when a selector resolves to nothing visible
	// within the allotted time.
	ErrElementNotFound = errors.New("element not found")
	// ErrInvalidSelector is returned when an engine cannot interpret a selector.
	ErrInvalidSelector = errors.New("invalid selector")
)

// Element is a lazily resolved handle to something in the live document.
type Element interface {
	// WaitVisible blocks until the element is attached and visible, or the
	// timeout elapses. A timeout is reported as ErrElementNotFound.
	WaitVisible(ctx context.Context, timeout time.Duration) error
}

// Document is the read-only view of a loaded page that the healing chain
// probes against. Implementations live in internal/browser.
type Document interface {
	// Resolve turns a selector into an element handle. It does not wait; an
	// unsupported selector dialect yields ErrInvalidSelector.
	Resolve(ctx context.Context, selector string) (Element, error)
	// HTMLSnapshot returns the current serialized document markup.
	HTMLSnapshot(ctx context.Context) (string, error)
}

// Driver extends Document with the page interactions a test needs.
type Driver interface {
	Document
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	TextContent(ctx context.Context, selector string) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}

// -- LLM Interfaces --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls the text generation of a single request.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
