package heal

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/llmutil"
	"github.com/xkilldash9x/suture/internal/selector"
)

// ErrNoLLMClient is reported when external suggestions are enabled but no
// language model is configured.
var ErrNoLLMClient = errors.New("no language model client configured")

const externalSystemPrompt = `You repair broken browser-test selectors. You are given a selector that no longer matches any element and an excerpt of the current page.
Reply with only a JSON array of selector strings, most reliable first. Prefer, in order: ARIA roles and labels, data attributes (data-testid, data-qa), stable text content, specific element types with clear context. Use CSS, XPath or Playwright text selectors.`

// ExternalGenerator asks a language model for replacements, giving it the
// failed selector and an excerpt of the current document.
type ExternalGenerator struct {
	client         schemas.LLMClient
	doc            schemas.Document
	contextSize    int
	maxSuggestions int
	timeout        time.Duration
	policy         *bluemonday.Policy
	logger         *zap.Logger
}

// ExternalOptions tunes the external generator.
type ExternalOptions struct {
	ContextSize    int
	MaxSuggestions int
	Timeout        time.Duration
}

func NewExternalGenerator(client schemas.LLMClient, doc schemas.Document, opts ExternalOptions, logger *zap.Logger) *ExternalGenerator {
	if opts.ContextSize <= 0 {
		opts.ContextSize = 500
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &ExternalGenerator{
		client:         client,
		doc:            doc,
		contextSize:    opts.ContextSize,
		maxSuggestions: opts.MaxSuggestions,
		timeout:        opts.Timeout,
		policy:         snippetPolicy(),
		logger:         logger.Named("external"),
	}
}

// snippetPolicy keeps structure and the attributes selectors are built from,
// dropping scripts, styles and inline handlers that only waste prompt space.
func snippetPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"html", "body", "header", "footer", "nav", "main", "section", "article", "aside",
		"div", "span", "p", "ul", "ol", "li", "a", "button", "form", "input", "select",
		"option", "textarea", "label", "h1", "h2", "h3", "h4", "h5", "h6", "img", "table",
		"tr", "td", "th", "dialog",
	)
	p.AllowAttrs("id", "class", "name", "type", "role", "title", "placeholder", "value",
		"aria-label", "aria-labelledby", "aria-describedby", "alt", "for").Globally()
	p.AllowAttrs("href").OnElements("a")
	p.AllowDataAttributes()
	p.AllowRelativeURLs(true)
	return p
}

func (g *ExternalGenerator) Strategy() schemas.Strategy { return schemas.StrategyExternal }

// Generate makes a single request. Transport errors, timeouts and unparseable
// replies are returned as errors; the orchestrator treats them as "no
// candidates" and records the reason.
func (g *ExternalGenerator) Generate(ctx context.Context, failed string) ([]schemas.Candidate, error) {
	if g.client == nil {
		return nil, ErrNoLLMClient
	}

	req := schemas.GenerationRequest{
		SystemPrompt: externalSystemPrompt,
		UserPrompt:   buildExternalPrompt(failed, g.htmlContext(ctx, failed), g.maxSuggestions),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0.2, MaxTokens: 500},
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	start := time.Now()
	reply, err := g.client.Generate(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("external suggestion request failed: %w", err)
	}

	suggestions, err := llmutil.ParseStringArray(reply, "selector")
	if err != nil {
		return nil, fmt.Errorf("unparseable external suggestions: %w", err)
	}

	out := newCandidateList(schemas.StrategyExternal, failed)
	for _, s := range suggestions {
		if len(out.list()) >= g.maxSuggestions {
			break
		}
		if _, err := selector.Parse(s); err != nil {
			g.logger.Debug("Discarding malformed suggestion", zap.String("suggestion", s), zap.Error(err))
			continue
		}
		out.add(s)
	}

	g.logger.Debug("External suggestions received",
		zap.String("selector", failed),
		zap.Int("suggestions", len(out.list())),
		zap.Duration("duration", time.Since(start)))
	return out.list(), nil
}

func buildExternalPrompt(failed, snippet string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following selector failed to find an element:\n%s\n\n", failed)
	if snippet != "" {
		fmt.Fprintf(&b, "Relevant HTML from the current page:\n```html\n%s\n```\n\n", snippet)
	}
	fmt.Fprintf(&b, "Suggest %d alternative selectors that would be more resilient.\n", n)
	fmt.Fprintf(&b, "Return only a JSON array of selector strings, no explanation:\n")
	b.WriteString(`["selector1", "selector2"]`)
	return b.String()
}

// htmlContext returns a sanitized window of the document around the first
// mention of the failed selector's keywords, or the start of the document.
func (g *ExternalGenerator) htmlContext(ctx context.Context, failed string) string {
	if g.doc == nil {
		return ""
	}
	raw, err := g.doc.HTMLSnapshot(ctx)
	if err != nil {
		g.logger.Debug("Could not snapshot document for prompt context", zap.Error(err))
		return ""
	}
	clean := collapseWhitespace(g.policy.Sanitize(raw))
	return window(clean, contextTerms(failed), g.contextSize)
}

func contextTerms(failed string) []string {
	f := selector.ExtractFragments(failed)
	var terms []string
	if f.Text != "" {
		terms = append(terms, strings.ToLower(f.Text))
	}
	for _, frag := range append([]string{f.ID}, f.Classes...) {
		terms = append(terms, selector.Keywords(frag)...)
	}
	for _, name := range slices.Sorted(maps.Keys(f.Attributes)) {
		terms = append(terms, selector.Keywords(f.Attributes[name])...)
	}
	return terms
}

func window(doc string, terms []string, size int) string {
	if len(doc) <= size {
		return doc
	}
	lower := strings.ToLower(doc)
	for _, t := range terms {
		if t == "" {
			continue
		}
		idx := strings.Index(lower, t)
		if idx < 0 {
			continue
		}
		start := idx - size/2
		if start < 0 {
			start = 0
		}
		end := start + size
		if end > len(doc) {
			end = len(doc)
			start = max(0, end-size)
		}
		return doc[start:end]
	}
	return doc[:size]
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
