package heal

import (
	"context"
	"strings"

	"github.com/xkilldash9x/suture/api/schemas"
)

// Generator proposes alternative selectors for one that failed to resolve.
// A nil error with no candidates means the strategy had nothing to offer; a
// non-nil error means the strategy itself failed.
type Generator interface {
	Strategy() schemas.Strategy
	Generate(ctx context.Context, failed string) ([]schemas.Candidate, error)
}

// candidateList accumulates selectors in emission order, dropping blanks,
// duplicates and the failed selector itself.
type candidateList struct {
	strategy schemas.Strategy
	failed   string
	seen     map[string]bool
	items    []schemas.Candidate
}

func newCandidateList(strategy schemas.Strategy, failed string) *candidateList {
	return &candidateList{
		strategy: strategy,
		failed:   strings.TrimSpace(failed),
		seen:     map[string]bool{},
	}
}

func (c *candidateList) add(selectors ...string) {
	for _, s := range selectors {
		s = strings.TrimSpace(s)
		if s == "" || s == c.failed || c.seen[s] {
			continue
		}
		c.seen[s] = true
		c.items = append(c.items, schemas.Candidate{Selector: s, Strategy: c.strategy})
	}
}

func (c *candidateList) list() []schemas.Candidate {
	return c.items
}

// HistoryGenerator replays replacements that healed the selector before.
type HistoryGenerator struct {
	history *History
}

func NewHistoryGenerator(h *History) *HistoryGenerator {
	return &HistoryGenerator{history: h}
}

func (g *HistoryGenerator) Strategy() schemas.Strategy { return schemas.StrategyHistory }

func (g *HistoryGenerator) Generate(_ context.Context, failed string) ([]schemas.Candidate, error) {
	out := newCandidateList(schemas.StrategyHistory, failed)
	out.add(g.history.Lookup(failed)...)
	return out.list(), nil
}

// PositionGenerator emits structural selectors for common tags. They bear no
// relation to the failed selector and are tried only when everything local
// has failed.
type PositionGenerator struct{}

var (
	positionTags    = []string{"button", "a", "input", "div", "span"}
	positionPseudos = []string{":first-child", ":last-child", ":nth-child(1)", ":nth-child(2)"}
)

func (PositionGenerator) Strategy() schemas.Strategy { return schemas.StrategyPosition }

func (PositionGenerator) Generate(_ context.Context, failed string) ([]schemas.Candidate, error) {
	out := newCandidateList(schemas.StrategyPosition, failed)
	for _, tag := range positionTags {
		for _, pseudo := range positionPseudos {
			out.add(tag + pseudo)
		}
	}
	return out.list(), nil
}
