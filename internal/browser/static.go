package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
	"github.com/xkilldash9x/suture/internal/selector"
)

const maxStaticBody = 10 << 20

// StaticDriver evaluates selectors against parsed HTML without running
// scripts. Visibility is approximated from markup: hidden attributes, inline
// display/visibility styles and non-rendered elements.
type StaticDriver struct {
	mu     sync.RWMutex
	root   *html.Node
	url    string
	client *http.Client
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ schemas.Driver = (*StaticDriver)(nil)

func NewStaticDriver(cfg config.BrowserConfig, logger *zap.Logger) *StaticDriver {
	cfg = withTimeouts(cfg)
	root, _ := html.Parse(strings.NewReader(""))
	return &StaticDriver{
		root:   root,
		url:    "about:blank",
		client: &http.Client{Timeout: cfg.NavigationTimeout},
		cfg:    cfg,
		logger: logger,
	}
}

// LoadHTML replaces the current document with markup, as if it had been
// served from pageURL.
func (d *StaticDriver) LoadHTML(markup, pageURL string) error {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}
	if pageURL == "" {
		pageURL = "about:blank"
	}
	d.mu.Lock()
	d.root = root
	d.url = pageURL
	d.mu.Unlock()
	return nil
}

// Navigate loads http(s) and file URLs. Relative URLs resolve against the
// current document.
func (d *StaticDriver) Navigate(ctx context.Context, rawURL string) error {
	target, err := d.resolveURL(rawURL)
	if err != nil {
		return err
	}

	var body []byte
	switch target.Scheme {
	case "file":
		body, err = os.ReadFile(target.Path)
	case "http", "https":
		body, err = d.fetch(ctx, target.String())
	case "about":
		body = nil
	default:
		return fmt.Errorf("static engine cannot load %q", rawURL)
	}
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", target, err)
	}
	d.logger.Debug("Loaded document", zap.String("url", target.String()), zap.Int("bytes", len(body)))
	return d.LoadHTML(string(body), target.String())
}

func (d *StaticDriver) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxStaticBody))
}

func (d *StaticDriver) resolveURL(rawURL string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	d.mu.RLock()
	base, err := url.Parse(d.url)
	d.mu.RUnlock()
	if err != nil || !base.IsAbs() || base.Scheme == "about" {
		return nil, fmt.Errorf("cannot resolve relative URL %q without a loaded page", rawURL)
	}
	return base.ResolveReference(ref), nil
}

func (d *StaticDriver) CurrentURL(context.Context) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.url, nil
}

func (d *StaticDriver) HTMLSnapshot(context.Context) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return htmlquery.OutputHTML(d.root, true), nil
}

// Resolve parses sel; matching happens when the element is waited on.
func (d *StaticDriver) Resolve(_ context.Context, sel string) (schemas.Element, error) {
	q, err := selector.Parse(sel)
	if err != nil {
		return nil, err
	}
	m, err := compileMatcher(q)
	if err != nil {
		return nil, err
	}
	return &staticElement{driver: d, query: q, match: m}, nil
}

// Click follows links; other elements are accepted and ignored.
func (d *StaticDriver) Click(ctx context.Context, sel string) error {
	n, err := d.firstVisible(ctx, sel)
	if err != nil {
		return err
	}
	if strings.EqualFold(n.Data, "a") {
		if href := htmlquery.SelectAttr(n, "href"); href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
			return d.Navigate(ctx, href)
		}
	}
	return nil
}

// Fill sets the value attribute of a form control.
func (d *StaticDriver) Fill(ctx context.Context, sel, value string) error {
	n, err := d.firstVisible(ctx, sel)
	if err != nil {
		return err
	}
	switch strings.ToLower(n.Data) {
	case "input", "textarea", "select":
	default:
		return fmt.Errorf("element matched by %q is a <%s>, not a form control", sel, n.Data)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	setAttr(n, "value", value)
	return nil
}

func (d *StaticDriver) TextContent(ctx context.Context, sel string) (string, error) {
	n, err := d.firstVisible(ctx, sel)
	if err != nil {
		return "", err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return htmlquery.InnerText(n), nil
}

func (d *StaticDriver) Close() error { return nil }

func (d *StaticDriver) firstVisible(ctx context.Context, sel string) (*html.Node, error) {
	el, err := d.Resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	n := el.(*staticElement).find()
	if n == nil {
		return nil, notFound(ctx, sel, nil)
	}
	return n, nil
}

type staticElement struct {
	driver *StaticDriver
	query  selector.Query
	match  matcher
}

// WaitVisible checks once; a static document only changes through this driver.
func (e *staticElement) WaitVisible(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.find() == nil {
		return notFound(ctx, e.query.Raw, nil)
	}
	return nil
}

func (e *staticElement) find() *html.Node {
	e.driver.mu.RLock()
	defer e.driver.mu.RUnlock()
	for _, n := range e.match(e.driver.root) {
		if isRendered(n) {
			return n
		}
	}
	return nil
}

// matcher returns the element nodes matching a query in document order.
type matcher func(root *html.Node) []*html.Node

func compileMatcher(q selector.Query) (matcher, error) {
	switch q.Kind {
	case selector.KindCSS:
		sel, err := cascadia.ParseGroup(q.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", schemas.ErrInvalidSelector, err)
		}
		return func(root *html.Node) []*html.Node { return cascadia.QueryAll(root, sel) }, nil

	case selector.KindXPath:
		if _, err := htmlquery.QueryAll(&html.Node{Type: html.DocumentNode}, q.Expr); err != nil {
			return nil, fmt.Errorf("%w: %v", schemas.ErrInvalidSelector, err)
		}
		return func(root *html.Node) []*html.Node {
			nodes, _ := htmlquery.QueryAll(root, q.Expr)
			return elementsOnly(nodes)
		}, nil

	case selector.KindText, selector.KindTextRegex:
		if q.Kind == selector.KindTextRegex {
			if _, err := q.Regexp(); err != nil {
				return nil, fmt.Errorf("%w: %v", schemas.ErrInvalidSelector, err)
			}
		}
		// Innermost elements whose own text matches.
		return func(root *html.Node) []*html.Node {
			var out []*html.Node
			walkElements(root, func(n *html.Node) {
				if q.MatchText(ownText(n)) {
					out = append(out, n)
				}
			})
			return out
		}, nil

	case selector.KindHasText:
		base := q.Expr
		if base == "" {
			base = "*"
		}
		sel, err := cascadia.ParseGroup(base)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", schemas.ErrInvalidSelector, err)
		}
		return func(root *html.Node) []*html.Node {
			var out []*html.Node
			for _, n := range cascadia.QueryAll(root, sel) {
				if q.MatchText(htmlquery.InnerText(n)) {
					out = append(out, n)
				}
			}
			return out
		}, nil
	}
	return nil, fmt.Errorf("%w: unsupported selector kind %s", schemas.ErrInvalidSelector, q.Kind)
}

func elementsOnly(nodes []*html.Node) []*html.Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
	}
	return out
}

func walkElements(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, fn)
	}
}

func ownText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}

var nonRendered = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"noscript": true, "meta": true, "link": true, "title": true,
}

// isRendered approximates visibility for a document without layout.
func isRendered(n *html.Node) bool {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "input") &&
		strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden") {
		return false
	}
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if nonRendered[strings.ToLower(p.Data)] {
			return false
		}
		for _, a := range p.Attr {
			switch strings.ToLower(a.Key) {
			case "hidden":
				return false
			case "style":
				if hiddenByStyle(a.Val) {
					return false
				}
			}
		}
	}
	return true
}

func hiddenByStyle(style string) bool {
	compact := strings.ToLower(strings.Join(strings.Fields(style), ""))
	return strings.Contains(compact, "display:none") || strings.Contains(compact, "visibility:hidden")
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
