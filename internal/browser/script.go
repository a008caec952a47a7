package browser

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/suture/internal/selector"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// visibleJS is shared by the finder scripts.
const visibleJS = `function visible(el) {
	if (!el || !el.isConnected) return false;
	const s = window.getComputedStyle(el);
	if (s.display === 'none' || s.visibility === 'hidden' || s.opacity === '0') return false;
	const r = el.getBoundingClientRect();
	return r.width > 0 && r.height > 0;
}`

// finderJS returns a JavaScript function expression that yields the first
// visible element matching q, or null. Engines use it for the text dialects
// that the browser cannot query natively.
func finderJS(q selector.Query) (string, error) {
	var collect, test string
	switch q.Kind {
	case selector.KindCSS:
		collect = fmt.Sprintf("Array.from(document.querySelectorAll(%s))", jsString(q.Expr))
		test = "true"
	case selector.KindXPath:
		collect = fmt.Sprintf(`(() => {
		const it = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		const out = [];
		for (let i = 0; i < it.snapshotLength; i++) out.push(it.snapshotItem(i));
		return out;
	})()`, jsString(q.Expr))
		test = "true"
	case selector.KindText:
		// Innermost match: the element owning a matching text node.
		collect = "Array.from(document.querySelectorAll('body *'))"
		own := "Array.from(el.childNodes).filter(n => n.nodeType === 3).map(n => n.textContent).join(' ').replace(/\\s+/g, ' ').trim()"
		if q.Exact {
			test = fmt.Sprintf("%s === %s", own, jsString(normalize(q.Text)))
		} else {
			test = fmt.Sprintf("%s.toLowerCase().includes(%s)", own, jsString(lower(normalize(q.Text))))
		}
	case selector.KindTextRegex:
		collect = "Array.from(document.querySelectorAll('body *'))"
		test = fmt.Sprintf("new RegExp(%s, %s).test(Array.from(el.childNodes).filter(n => n.nodeType === 3).map(n => n.textContent).join(' '))",
			jsString(q.Text), jsString(q.Flags))
	case selector.KindHasText:
		base := q.Expr
		if base == "" {
			base = "*"
		}
		collect = fmt.Sprintf("Array.from(document.querySelectorAll(%s))", jsString(base))
		test = fmt.Sprintf("(el.innerText || el.textContent || '').replace(/\\s+/g, ' ').toLowerCase().includes(%s)",
			jsString(lower(normalize(q.Text))))
	default:
		return "", fmt.Errorf("%w: %s", selector.ErrInvalidSelector, q.Raw)
	}

	return fmt.Sprintf(`() => {
	%s
	for (const el of %s) {
		if (el.nodeType === 1 && (%s) && visible(el)) return el;
	}
	return null;
}`, visibleJS, collect, test), nil
}

func normalize(s string) string { return strings.Join(strings.Fields(s), " ") }

func lower(s string) string { return strings.ToLower(s) }
