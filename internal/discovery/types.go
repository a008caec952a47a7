// internal/discovery/types.go
package discovery

import (
	"time"
)

// ElementType classifies a discovered element.
type ElementType string

const (
	ElementNavigation ElementType = "navigation"
	ElementButton     ElementType = "button"
	ElementLink       ElementType = "link"
	ElementForm       ElementType = "form"
)

// DiscoveredSelector is one interactive element found on a page together with
// the most stable selector that identifies it.
type DiscoveredSelector struct {
	Selector       string            `json:"selector"`
	ElementType    ElementType       `json:"element_type"`
	Text           string            `json:"text_content"`
	Href           string            `json:"page_url,omitempty"`
	DataAttributes map[string]string `json:"data_attributes,omitempty"`
	AriaLabel      string            `json:"aria_label,omitempty"`
	// External is set for links that leave the site.
	External     bool      `json:"external,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Catalog categories.
const (
	CategoryNavigation = "navigation"
	CategoryButtons    = "buttons"
	CategoryLinks      = "links"
	CategoryForms      = "forms"
	CategoryVehicles   = "vehicles"
)

// Categorized maps a category to a key -> selector table.
type Categorized map[string]map[string]string

// Count returns the number of selectors across all categories.
func (c Categorized) Count() int {
	n := 0
	for _, m := range c {
		n += len(m)
	}
	return n
}

// CatalogRun records one merge into a catalog file.
type CatalogRun struct {
	Timestamp      time.Time `json:"timestamp"`
	SelectorsAdded int       `json:"selectors_added"`
	Categories     []string  `json:"categories"`
	PageURL        string    `json:"page_url,omitempty"`
}
