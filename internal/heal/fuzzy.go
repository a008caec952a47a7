package heal

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/selector"
)

// FuzzyTextGenerator loosens text-matching selectors: case-insensitive
// regex, a prefix of the text, and a lower-cased XPath contains. Selectors
// without text intent produce nothing.
type FuzzyTextGenerator struct {
	PrefixLength int
}

var fuzzyTextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`text=["']([^"']+)["']`),
	regexp.MustCompile(`^text=([^/"'].*)$`),
	regexp.MustCompile(`:has-text\(\s*["']([^"']+)["']\s*\)`),
	regexp.MustCompile(`contains\(\s*text\(\)\s*,\s*["']([^"']+)["']\s*\)`),
}

func NewFuzzyTextGenerator(prefixLength int) *FuzzyTextGenerator {
	if prefixLength <= 0 {
		prefixLength = 10
	}
	return &FuzzyTextGenerator{PrefixLength: prefixLength}
}

func (g *FuzzyTextGenerator) Strategy() schemas.Strategy { return schemas.StrategyFuzzy }

func (g *FuzzyTextGenerator) Generate(_ context.Context, failed string) ([]schemas.Candidate, error) {
	out := newCandidateList(schemas.StrategyFuzzy, failed)
	for _, text := range textIntents(failed) {
		out.add(
			fmt.Sprintf("text=/%s/i", escapeRegexSelector(text)),
			fmt.Sprintf(":has-text(%s)", selector.QuoteCSS(prefix(text, g.PrefixLength))),
			fmt.Sprintf("//*[contains(translate(text(), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), %s)]",
				selector.Literal(strings.ToLower(text))),
		)
	}
	return out.list(), nil
}

// textIntents lists the distinct text payloads the selector matches on.
func textIntents(failed string) []string {
	s := strings.TrimSpace(failed)
	var texts []string
	for _, re := range fuzzyTextPatterns {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			t := strings.TrimSpace(m[1])
			if t != "" && !slices.Contains(texts, t) {
				texts = append(texts, t)
			}
		}
	}
	return texts
}

// prefix truncates s to n runes, trimming trailing whitespace.
func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

// escapeRegexSelector quotes regex metacharacters and the delimiting slash.
func escapeRegexSelector(s string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(s), "/", `\/`)
}
