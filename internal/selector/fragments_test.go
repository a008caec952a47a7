package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFragments(t *testing.T) {
	t.Run("id", func(t *testing.T) {
		f := ExtractFragments("#old-search-box")
		assert.Equal(t, "old-search-box", f.ID)
		assert.Empty(t, f.Classes)
		assert.Empty(t, f.Text)
		assert.False(t, f.Empty())
	})

	t.Run("tag with classes", func(t *testing.T) {
		f := ExtractFragments("button.btn-primary.cta")
		assert.Equal(t, "button", f.Tag)
		assert.Equal(t, []string{"btn-primary", "cta"}, f.Classes)
	})

	t.Run("quoted text", func(t *testing.T) {
		f := ExtractFragments(`text="Find a Dealer"`)
		assert.Equal(t, "Find a Dealer", f.Text)
		assert.Empty(t, f.ID)
		assert.Empty(t, f.Tag)
	})

	t.Run("text containing id-like characters", func(t *testing.T) {
		f := ExtractFragments(`a:has-text("Vehicle #1.5")`)
		assert.Equal(t, "Vehicle #1.5", f.Text)
		assert.Empty(t, f.ID)
		assert.Empty(t, f.Classes)
		assert.Equal(t, "a", f.Tag)
	})

	t.Run("xpath contains text", func(t *testing.T) {
		f := ExtractFragments(`//*[contains(text(), "Shop Now")]`)
		assert.Equal(t, "Shop Now", f.Text)
	})

	t.Run("attributes", func(t *testing.T) {
		f := ExtractFragments(`input[name='q'][data-testid="site-search"]`)
		assert.Equal(t, "q", f.Attributes["name"])
		assert.Equal(t, "site-search", f.Attributes["data-testid"])
		assert.Equal(t, "input", f.Tag)
	})

	t.Run("attribute values are not ids", func(t *testing.T) {
		f := ExtractFragments(`a[href="#top"]`)
		assert.Empty(t, f.ID)
		assert.Equal(t, "#top", f.Attributes["href"])
	})

	t.Run("xpath id attribute", func(t *testing.T) {
		f := ExtractFragments(`//div[@id='hero-banner']`)
		assert.Equal(t, "hero-banner", f.ID)
	})

	t.Run("position-only selector", func(t *testing.T) {
		f := ExtractFragments("div > span:nth-child(2)")
		assert.True(t, f.Empty())
	})
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"old-search-box", []string{"search"}},
		{"searchBox_v2", []string{"search"}},
		{"btn-submit-order", []string{"btn", "submit", "order"}},
		{"navMenuNav", []string{"nav", "menu"}},
		{"hero123banner", []string{"hero", "banner"}},
		{"x-1", nil},
		{"Find a Dealer", []string{"find", "dealer"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Keywords(tt.in))
		})
	}
}
