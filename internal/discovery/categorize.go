package discovery

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xkilldash9x/suture/internal/selector"
)

// vehicleModels are the model slugs recognised in link targets.
var vehicleModels = []string{
	"camry", "corolla", "rav4", "tacoma", "tundra", "highlander", "prius",
	"4runner", "sequoia", "sienna", "gr86", "grcorolla", "grsupra",
}

// Categorize groups discovered selectors into catalog categories keyed by a
// snake_case rendering of their text. Later entries win on key collisions;
// external links are left out.
func Categorize(found []DiscoveredSelector) Categorized {
	out := Categorized{
		CategoryNavigation: {},
		CategoryButtons:    {},
		CategoryLinks:      {},
		CategoryForms:      {},
		CategoryVehicles:   {},
	}

	for _, ds := range found {
		switch ds.ElementType {
		case ElementNavigation:
			if key := Key(firstNonEmpty(ds.Text, ds.AriaLabel)); key != "" {
				out[CategoryNavigation][key] = ds.Selector
			}
		case ElementButton:
			if key := Key(firstNonEmpty(ds.Text, ds.AriaLabel)); key != "" {
				out[CategoryButtons][key] = ds.Selector
			}
		case ElementForm:
			if key := Key(ds.Text); key != "" {
				out[CategoryForms][key] = ds.Selector
			}
		case ElementLink:
			if ds.External {
				continue
			}
			if model := vehicleModel(ds.Href); model != "" {
				out[CategoryVehicles][model] = fmt.Sprintf("a[href*=%s]", selector.QuoteCSS("/"+model+"/"))
			} else if key := Key(firstNonEmpty(ds.Text, ds.AriaLabel)); key != "" {
				out[CategoryLinks][key] = ds.Selector
			}
		}
	}
	return out
}

// Key lowercases s and joins its words with underscores, dropping anything
// that is not a letter or digit.
func Key(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, "_")
}

func vehicleModel(href string) string {
	lower := strings.ToLower(href)
	for _, m := range vehicleModels {
		if strings.Contains(lower, "/"+m) {
			return m
		}
	}
	return ""
}
