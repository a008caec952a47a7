package selector

import (
	"regexp"
	"strings"
	"unicode"
)

// Fragments are the meaningful pieces pulled out of a selector by simple
// pattern matching. Selectors are never fully parsed here, so compound or
// unusual selectors simply yield fewer fragments.
type Fragments struct {
	ID         string
	Classes    []string
	Text       string
	Attributes map[string]string
	Tag        string
}

// Empty reports whether nothing usable was extracted.
func (f Fragments) Empty() bool {
	return f.ID == "" && len(f.Classes) == 0 && f.Text == "" && len(f.Attributes) == 0
}

var (
	idFragment       = regexp.MustCompile(`#([\w-]+)`)
	classFragment    = regexp.MustCompile(`\.([A-Za-z_][\w-]*)`)
	quotedTextEquals = regexp.MustCompile(`text=["']([^"']+)["']`)
	bareTextEquals   = regexp.MustCompile(`^text=([^/"'].*)$`)
	hasTextFragment  = regexp.MustCompile(`:has-text\(\s*["']([^"']+)["']\s*\)`)
	containsText     = regexp.MustCompile(`contains\(\s*(?:text\(\)|\.|normalize-space\([^)]*\))\s*,\s*["']([^"']+)["']\s*\)`)
	attrFragment     = regexp.MustCompile(`\[\s*([\w-]+)\s*[~|^$*]?=\s*["']?([^"'\]]+?)["']?\s*(?:[is]\s*)?\]`)
	xpathAttr        = regexp.MustCompile(`@([\w-]+)\s*=\s*["']([^"']+)["']`)
	leadingTag       = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9]*)`)
)

// ExtractFragments pulls the id, class, text and attribute fragments out of a
// failed selector.
func ExtractFragments(raw string) Fragments {
	s := strings.TrimSpace(raw)
	f := Fragments{Attributes: map[string]string{}}

	for _, re := range []*regexp.Regexp{quotedTextEquals, hasTextFragment, containsText, bareTextEquals} {
		if m := re.FindStringSubmatch(s); m != nil {
			f.Text = strings.TrimSpace(m[1])
			break
		}
	}

	// Text payloads may contain '#' or '.', which are not id/class fragments.
	var structural string
	if !strings.HasPrefix(s, "text=") {
		structural = hasTextFragment.ReplaceAllString(s, "")
		structural = containsText.ReplaceAllString(structural, "")
	}
	// Attribute values can look like ids or classes too ("[href='#top']").
	withoutAttrs := attrFragment.ReplaceAllString(structural, "")

	if m := idFragment.FindStringSubmatch(withoutAttrs); m != nil {
		f.ID = m[1]
	}
	for _, m := range classFragment.FindAllStringSubmatch(withoutAttrs, -1) {
		f.Classes = append(f.Classes, m[1])
	}
	for _, m := range attrFragment.FindAllStringSubmatch(structural, -1) {
		f.Attributes[strings.ToLower(m[1])] = strings.TrimSpace(m[2])
	}
	for _, m := range xpathAttr.FindAllStringSubmatch(structural, -1) {
		f.Attributes[strings.ToLower(m[1])] = m[2]
	}
	if id, ok := f.Attributes["id"]; ok && f.ID == "" {
		f.ID = id
	}
	if m := leadingTag.FindStringSubmatch(withoutAttrs); m != nil {
		f.Tag = strings.ToLower(m[1])
	}
	return f
}

// noiseWords are tokens that say nothing about what an element is for.
var noiseWords = map[string]bool{
	"old": true, "new": true, "legacy": true, "tmp": true, "temp": true, "test": true,
	"box": true, "wrapper": true, "wrap": true, "container": true, "inner": true, "outer": true,
	"div": true, "span": true, "el": true, "elem": true, "element": true, "item": true,
	"the": true, "and": true, "for": true, "with": true, "v2": true, "v3": true,
	"js": true, "css": true, "id": true, "cls": true, "component": true, "module": true,
	"section": true, "block": true, "col": true, "row": true, "xs": true, "sm": true,
	"md": true, "lg": true, "xl": true,
}

// Keywords splits a fragment such as "old-searchBox_v2" into meaningful
// lower-case tokens ("search"), preserving first-seen order.
func Keywords(fragment string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(fragment)
	for i, r := range runes {
		switch {
		case r == '-' || r == '_' || unicode.IsSpace(r) || unicode.IsPunct(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		case i > 0 && unicode.IsDigit(r) != unicode.IsDigit(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()

	seen := map[string]bool{}
	var out []string
	for _, t := range tokens {
		if len(t) < 3 || noiseWords[t] || isNumeric(t) || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
