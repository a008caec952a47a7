// Package selector classifies and rewrites the selector strings used by tests.
// It understands plain CSS, XPath and the text-matching extensions popularised
// by Playwright (text=, text=/re/ and :has-text()).
package selector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/suture/api/schemas"
)

// ErrInvalidSelector is returned for empty or malformed selectors. It is the
// same sentinel the document engines report.
var ErrInvalidSelector = schemas.ErrInvalidSelector

// Kind is the dialect of a selector.
type Kind int

const (
	KindCSS Kind = iota
	KindXPath
	KindText
	KindTextRegex
	KindHasText
)

func (k Kind) String() string {
	switch k {
	case KindCSS:
		return "css"
	case KindXPath:
		return "xpath"
	case KindText:
		return "text"
	case KindTextRegex:
		return "text-regex"
	case KindHasText:
		return "has-text"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Query is a parsed selector.
type Query struct {
	Raw  string
	Kind Kind
	// Expr is the CSS or XPath expression. For has-text it is the base CSS
	// selector, which may be empty.
	Expr string
	// Text is the text payload of text, text-regex and has-text selectors.
	// For text-regex it is the pattern source.
	Text string
	// Exact is set for quoted text= selectors, which match the whole
	// normalized text case-sensitively.
	Exact bool
	// Flags holds regex flags such as "i".
	Flags string
}

var (
	hasTextRegex   = regexp.MustCompile(`^(.*?):has-text\(\s*(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')\s*\)$`)
	textRegexRegex = regexp.MustCompile(`^/(.+)/([a-z]*)$`)
)

// Parse classifies raw into a Query.
func Parse(raw string) (Query, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Query{}, fmt.Errorf("%w: empty selector", ErrInvalidSelector)
	}
	q := Query{Raw: raw}

	switch {
	case strings.HasPrefix(s, "xpath="):
		q.Kind = KindXPath
		q.Expr = strings.TrimSpace(strings.TrimPrefix(s, "xpath="))
	case strings.HasPrefix(s, "//") || strings.HasPrefix(s, "(//") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, ".."):
		q.Kind = KindXPath
		q.Expr = s
	case strings.HasPrefix(s, "text="):
		body := strings.TrimPrefix(s, "text=")
		if m := textRegexRegex.FindStringSubmatch(body); m != nil {
			q.Kind = KindTextRegex
			q.Text = m[1]
			q.Flags = m[2]
			if _, err := regexp.Compile(goRegexFlags(q.Flags) + q.Text); err != nil {
				return Query{}, fmt.Errorf("%w: %v", ErrInvalidSelector, err)
			}
			break
		}
		q.Kind = KindText
		if unq, ok := unquote(body); ok {
			q.Text = unq
			q.Exact = true
		} else {
			q.Text = strings.TrimSpace(body)
		}
	case strings.Contains(s, ":has-text("):
		m := hasTextRegex.FindStringSubmatch(s)
		if m == nil {
			return Query{}, fmt.Errorf("%w: malformed :has-text in %q", ErrInvalidSelector, s)
		}
		q.Kind = KindHasText
		q.Expr = strings.TrimSpace(m[1])
		q.Text = m[2]
		if m[3] != "" {
			q.Text = m[3]
		}
		q.Text = unescape(q.Text)
	default:
		q.Kind = KindCSS
		q.Expr = s
	}

	if q.Kind != KindCSS && q.Kind != KindXPath && q.Text == "" {
		return Query{}, fmt.Errorf("%w: empty text in %q", ErrInvalidSelector, s)
	}
	if q.Kind == KindXPath && q.Expr == "" {
		return Query{}, fmt.Errorf("%w: empty xpath", ErrInvalidSelector)
	}
	return q, nil
}

// IsTextual reports whether the selector matches by text content.
func (q Query) IsTextual() bool {
	return q.Kind == KindText || q.Kind == KindTextRegex || q.Kind == KindHasText
}

// Regexp compiles the pattern of a text-regex query, honouring the i, m and s flags.
func (q Query) Regexp() (*regexp.Regexp, error) {
	if q.Kind != KindTextRegex {
		return nil, fmt.Errorf("not a regex selector: %s", q.Raw)
	}
	return regexp.Compile(goRegexFlags(q.Flags) + q.Text)
}

var simpleTag = regexp.MustCompile(`^(?:[a-zA-Z][a-zA-Z0-9-]*|\*)?$`)

// XPath translates the query into an XPath 1.0 expression for engines without
// native support for the text dialect. Regex text and has-text over a complex
// base selector cannot be expressed and return an error.
func (q Query) XPath() (string, error) {
	switch q.Kind {
	case KindXPath:
		return q.Expr, nil
	case KindText:
		if q.Exact {
			return fmt.Sprintf("//*[text()[normalize-space(.)=%s]]", Literal(normalizeSpace(q.Text))), nil
		}
		return "//*" + containsTextPredicate(q.Text), nil
	case KindHasText:
		if !simpleTag.MatchString(q.Expr) {
			return "", fmt.Errorf("cannot express %q as xpath", q.Raw)
		}
		tag := q.Expr
		if tag == "" {
			tag = "*"
		}
		return fmt.Sprintf("//%s[contains(%s, %s)]", tag, lowerCase("normalize-space(.)"), Literal(strings.ToLower(q.Text))), nil
	}
	return "", fmt.Errorf("cannot express %s selector %q as xpath", q.Kind, q.Raw)
}

// containsTextPredicate matches elements owning a text node that contains
// text, ignoring case. Only direct text nodes count so ancestors of the
// element do not also match.
func containsTextPredicate(text string) string {
	return fmt.Sprintf("[text()[contains(%s, %s)]]", lowerCase("normalize-space(.)"), Literal(strings.ToLower(normalizeSpace(text))))
}

const (
	upperAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerAlpha = "abcdefghijklmnopqrstuvwxyz"
)

func lowerCase(expr string) string {
	return fmt.Sprintf("translate(%s, '%s', '%s')", expr, upperAlpha, lowerAlpha)
}

// Literal quotes s as an XPath string literal, falling back to concat() when s
// contains both quote characters.
func Literal(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// QuoteCSS quotes s as a CSS string.
func QuoteCSS(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// MatchText reports whether an element's text satisfies the query's text
// condition. It is shared by engines that evaluate text selectors themselves.
func (q Query) MatchText(text string) bool {
	switch q.Kind {
	case KindText:
		if q.Exact {
			return normalizeSpace(text) == normalizeSpace(q.Text)
		}
		return strings.Contains(strings.ToLower(normalizeSpace(text)), strings.ToLower(normalizeSpace(q.Text)))
	case KindHasText:
		return strings.Contains(strings.ToLower(normalizeSpace(text)), strings.ToLower(normalizeSpace(q.Text)))
	case KindTextRegex:
		re, err := q.Regexp()
		return err == nil && re.MatchString(normalizeSpace(text))
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func goRegexFlags(flags string) string {
	var out strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			out.WriteRune(f)
		}
	}
	if out.Len() == 0 {
		return ""
	}
	return "(?" + out.String() + ")"
}

func unquote(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return "", false
	}
	if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
		return unescape(s[1 : len(s)-1]), true
	}
	return "", false
}

func unescape(s string) string {
	return strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\\`, `\`).Replace(s)
}
