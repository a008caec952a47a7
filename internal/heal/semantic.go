package heal

import (
	"context"
	"fmt"
	"slices"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/selector"
)

// SemanticGenerator derives selectors from the intent encoded in the failed
// selector's id, class, attribute and text fragments. Exact stable-attribute
// forms come first, then keyword attribute-contains forms, then ARIA role
// guesses and finally the generic landmark roles.
type SemanticGenerator struct{}

// commonRoles are tried last, regardless of the failed selector.
var commonRoles = []string{"button", "link", "navigation", "main", "article", "search"}

// roleHints maps intent keywords onto the elements usually carrying that intent.
var roleHints = map[string][]string{
	"search":     {`[role="search"]`, `input[type="search"]`, `[role="searchbox"]`},
	"btn":        {`button`, `[role="button"]`},
	"button":     {`button`, `[role="button"]`},
	"submit":     {`button[type="submit"]`, `input[type="submit"]`},
	"link":       {`[role="link"]`},
	"nav":        {`nav`, `[role="navigation"]`},
	"navigation": {`nav`, `[role="navigation"]`},
	"menu":       {`[role="menu"]`, `[role="menubar"]`, `nav`},
	"header":     {`header`, `[role="banner"]`},
	"banner":     {`[role="banner"]`},
	"footer":     {`footer`, `[role="contentinfo"]`},
	"dialog":     {`[role="dialog"]`, `dialog`},
	"modal":      {`[role="dialog"]`, `dialog`},
	"tab":        {`[role="tab"]`},
	"checkbox":   {`input[type="checkbox"]`, `[role="checkbox"]`},
	"email":      {`input[type="email"]`},
	"password":   {`input[type="password"]`},
	"zip":        {`input[autocomplete="postal-code"]`},
}

// stableAttributes are compared exactly before any fuzzy form is tried.
var stableAttributes = []string{"data-testid", "data-test", "data-qa", "name", "aria-label"}

func (SemanticGenerator) Strategy() schemas.Strategy { return schemas.StrategySemantic }

func (SemanticGenerator) Generate(_ context.Context, failed string) ([]schemas.Candidate, error) {
	f := selector.ExtractFragments(failed)
	out := newCandidateList(schemas.StrategySemantic, failed)
	if f.Empty() {
		return out.list(), nil
	}

	var keywords []string
	addKeywords := func(fragment string) {
		for _, k := range selector.Keywords(fragment) {
			if !slices.Contains(keywords, k) {
				keywords = append(keywords, k)
			}
		}
	}

	if f.ID != "" {
		q := selector.QuoteCSS(f.ID)
		for _, attr := range stableAttributes[:4] {
			out.add(fmt.Sprintf("[%s=%s]", attr, q))
		}
		addKeywords(f.ID)
	}

	for _, attr := range stableAttributes {
		v, ok := f.Attributes[attr]
		if !ok {
			continue
		}
		q := selector.QuoteCSS(v)
		for _, other := range stableAttributes {
			if other != attr {
				out.add(fmt.Sprintf("[%s=%s]", other, q))
			}
		}
		out.add(fmt.Sprintf("[id=%s]", q))
		addKeywords(v)
	}

	for _, class := range f.Classes {
		out.add(fmt.Sprintf("[class*=%s]", selector.QuoteCSS(class)))
		addKeywords(class)
	}

	for _, k := range keywords {
		q := selector.QuoteCSS(k)
		out.add(
			fmt.Sprintf("[data-testid*=%s]", q),
			fmt.Sprintf("[aria-label*=%s]", q),
			fmt.Sprintf("[aria-label*=%s i]", q),
			fmt.Sprintf("[placeholder*=%s i]", q),
			fmt.Sprintf("[title*=%s i]", q),
			fmt.Sprintf("[name*=%s]", q),
			fmt.Sprintf("[id*=%s]", q),
			fmt.Sprintf("[class*=%s]", q),
		)
	}
	for _, k := range keywords {
		out.add(roleHints[k]...)
	}

	if f.Text != "" {
		q := selector.QuoteCSS(f.Text)
		out.add(
			"text="+q,
			fmt.Sprintf("[aria-label=%s]", q),
			fmt.Sprintf("button:has-text(%s)", q),
			fmt.Sprintf("a:has-text(%s)", q),
			fmt.Sprintf("//*[contains(text(), %s)]", selector.Literal(f.Text)),
			fmt.Sprintf("[title=%s]", q),
		)
	}

	for _, role := range commonRoles {
		out.add(fmt.Sprintf(`[role="%s"]`, role))
	}
	return out.list(), nil
}
