// Package discovery inventories the interactive elements of a page and
// proposes a stable selector for each, so a selector catalog can be seeded
// or refreshed from the live site.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/selector"
)

// Text lengths kept per element type, so keys stay readable.
const (
	navTextLimit    = 50
	buttonTextLimit = 30
	linkTextLimit   = 40
)

// dataAttributes are the test hooks preferred over every other attribute, in
// order.
var dataAttributes = []string{"data-testid", "data-test", "data-qa", "data-di-id"}

// trackingAttributes are recorded on links but not used as selectors.
var trackingAttributes = []string{"data-aa-link-text", "data-aa-action"}

var cssIdent = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

// Source is what Discoverer needs from a loaded page.
type Source interface {
	HTMLSnapshot(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
}

// Discoverer walks a document and records its navigation items, buttons,
// links and form fields.
type Discoverer struct {
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Discoverer.
func New(logger *zap.Logger) *Discoverer {
	return &Discoverer{
		logger: logger.Named("discovery"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FromPage discovers selectors in the document currently loaded in src.
func (d *Discoverer) FromPage(ctx context.Context, src Source) ([]DiscoveredSelector, error) {
	markup, err := src.HTMLSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	pageURL, err := src.CurrentURL(ctx)
	if err != nil {
		d.logger.Debug("Page URL unavailable, links will not be scoped", zap.Error(err))
		pageURL = ""
	}
	return d.Discover(markup, pageURL)
}

// Discover parses markup and returns one entry per interactive element.
// pageURL resolves relative links and scopes them to the site; it may be
// empty.
func (d *Discoverer) Discover(markup, pageURL string) ([]DiscoveredSelector, error) {
	root, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	w := &walker{
		now:  d.now(),
		seen: make(map[*html.Node]bool),
	}
	if base, err := url.Parse(pageURL); err == nil && base.Host != "" {
		w.base = base
		if scope, err := NewSiteScope(pageURL, true); err == nil {
			w.scope = scope
		}
	}

	w.collect(root, `//nav//a | //nav//button | //*[@role="navigation"]//a`, ElementNavigation)
	w.collect(root, `//button | //*[@role="button"] | //input[@type="submit" or @type="button"]`, ElementButton)
	w.collect(root, `//a[@href]`, ElementLink)
	w.collect(root, `//input | //select | //textarea`, ElementForm)

	d.logger.Debug("Discovered selectors",
		zap.String("url", pageURL),
		zap.Int("count", len(w.found)))
	return w.found, nil
}

type walker struct {
	base  *url.URL
	scope *SiteScope
	now   time.Time
	seen  map[*html.Node]bool
	found []DiscoveredSelector
}

func (w *walker) collect(root *html.Node, expr string, kind ElementType) {
	for _, n := range htmlquery.Find(root, expr) {
		if w.seen[n] || !rendered(n) {
			continue
		}
		if ds, ok := w.describe(n, kind); ok {
			w.seen[n] = true
			w.found = append(w.found, ds)
		}
	}
}

func (w *walker) describe(n *html.Node, kind ElementType) (DiscoveredSelector, bool) {
	ds := DiscoveredSelector{
		ElementType:  kind,
		AriaLabel:    strings.TrimSpace(attr(n, "aria-label")),
		DiscoveredAt: w.now,
	}

	switch kind {
	case ElementNavigation:
		ds.Text = clip(text(n), navTextLimit)
	case ElementButton:
		ds.Text = clip(text(n), buttonTextLimit)
		if ds.Text == "" && n.Data == "input" {
			ds.Text = strings.TrimSpace(attr(n, "value"))
		}
	case ElementLink:
		ds.Text = clip(text(n), linkTextLimit)
	case ElementForm:
		switch strings.ToLower(attr(n, "type")) {
		case "hidden", "submit", "button", "image", "reset":
			return ds, false
		}
		ds.Text = firstNonEmpty(attr(n, "placeholder"), attr(n, "name"), attr(n, "id"))
	}

	if href := strings.TrimSpace(attr(n, "href")); href != "" {
		if href == "#" || strings.HasPrefix(href, "javascript:") {
			if kind == ElementLink {
				return ds, false
			}
		} else {
			ds.Href, ds.External = w.resolve(href)
		}
	}

	for _, name := range append(append([]string(nil), dataAttributes...), trackingAttributes...) {
		if v := strings.TrimSpace(attr(n, name)); v != "" {
			if ds.DataAttributes == nil {
				ds.DataAttributes = make(map[string]string)
			}
			ds.DataAttributes[name] = v
		}
	}

	label := ds.Text
	if kind == ElementForm {
		label = ""
	}
	ds.Selector = stableSelector(n, label)
	if ds.Selector == "" {
		return ds, false
	}
	if kind != ElementForm && ds.Text == "" && ds.AriaLabel == "" {
		return ds, false
	}
	return ds, true
}

func (w *walker) resolve(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return href, false
	}
	external := !w.scope.Contains(u)
	if w.base != nil {
		u = w.base.ResolveReference(u)
	}
	return u.String(), external
}

// stableSelector picks the most durable way to address n: a test data
// attribute, then id, aria-label, name, placeholder, href, an input's value
// and finally its text.
func stableSelector(n *html.Node, label string) string {
	tag := n.Data
	for _, name := range dataAttributes {
		if v := strings.TrimSpace(attr(n, name)); v != "" {
			return fmt.Sprintf("[%s=%s]", name, selector.QuoteCSS(v))
		}
	}
	if id := strings.TrimSpace(attr(n, "id")); id != "" {
		if cssIdent.MatchString(id) {
			return "#" + id
		}
		return fmt.Sprintf("[id=%s]", selector.QuoteCSS(id))
	}
	if v := strings.TrimSpace(attr(n, "aria-label")); v != "" {
		return fmt.Sprintf("%s[aria-label=%s]", tag, selector.QuoteCSS(v))
	}
	if v := strings.TrimSpace(attr(n, "name")); v != "" {
		return fmt.Sprintf("%s[name=%s]", tag, selector.QuoteCSS(v))
	}
	if v := strings.TrimSpace(attr(n, "placeholder")); v != "" {
		return fmt.Sprintf("%s[placeholder=%s]", tag, selector.QuoteCSS(v))
	}
	if v := strings.TrimSpace(attr(n, "href")); v != "" && v != "#" && !strings.HasPrefix(v, "javascript:") {
		return fmt.Sprintf("a[href=%s]", selector.QuoteCSS(v))
	}
	if v := strings.TrimSpace(attr(n, "value")); v != "" && tag == "input" {
		return fmt.Sprintf("input[value=%s]", selector.QuoteCSS(v))
	}
	if label != "" {
		return fmt.Sprintf("%s:has-text(%s)", tag, selector.QuoteCSS(label))
	}
	return ""
}

// Alternatives lists other selectors for the same element, starting with the
// discovered one. They are the candidates to try when the primary breaks.
func Alternatives(ds DiscoveredSelector) []string {
	out := []string{ds.Selector}
	add := func(s string) {
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}
	for _, name := range dataAttributes {
		if v, ok := ds.DataAttributes[name]; ok {
			add(fmt.Sprintf("[%s=%s]", name, selector.QuoteCSS(v)))
		}
	}
	for _, name := range trackingAttributes {
		if v, ok := ds.DataAttributes[name]; ok {
			add(fmt.Sprintf("[%s=%s]", name, selector.QuoteCSS(v)))
		}
	}
	if ds.AriaLabel != "" {
		add(fmt.Sprintf("[aria-label=%s]", selector.QuoteCSS(ds.AriaLabel)))
	}
	if ds.Text != "" && ds.ElementType != ElementForm {
		add("text=" + selector.QuoteCSS(clip(ds.Text, 20)))
	}
	return out
}

// ValidSelector rejects the junk values a page script can produce, such as
// "undefined" for an element without an id.
func ValidSelector(s string) bool {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "undefined", "null", "nan":
		return false
	}
	q, err := selector.Parse(s)
	if err != nil {
		return false
	}
	switch q.Kind {
	case selector.KindCSS:
		_, err = cascadia.ParseGroup(q.Expr)
	case selector.KindHasText:
		if q.Expr != "" {
			_, err = cascadia.ParseGroup(q.Expr)
		}
	case selector.KindXPath:
		_, err = htmlquery.QueryAll(&html.Node{Type: html.DocumentNode}, q.Expr)
	}
	return err == nil
}

func rendered(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if _, hidden := attrOK(p, "hidden"); hidden {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(attr(p, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
		switch p.Data {
		case "template", "noscript":
			return false
		}
	}
	return true
}

func attr(n *html.Node, name string) string {
	v, _ := attrOK(n, name)
	return v
}

func attrOK(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func text(n *html.Node) string {
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ Source = (schemas.Driver)(nil)
