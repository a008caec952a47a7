package selector

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want Query
	}{
		{"#old-search-box", Query{Kind: KindCSS, Expr: "#old-search-box"}},
		{`[aria-label*="search"]`, Query{Kind: KindCSS, Expr: `[aria-label*="search"]`}},
		{"//button[@id='go']", Query{Kind: KindXPath, Expr: "//button[@id='go']"}},
		{"(//a)[2]", Query{Kind: KindXPath, Expr: "(//a)[2]"}},
		{"xpath=//main", Query{Kind: KindXPath, Expr: "//main"}},
		{"text=Sign in", Query{Kind: KindText, Text: "Sign in"}},
		{`text="Sign in"`, Query{Kind: KindText, Text: "Sign in", Exact: true}},
		{"text=/sign\\s+in/i", Query{Kind: KindTextRegex, Text: "sign\\s+in", Flags: "i"}},
		{`button:has-text("Shop Now")`, Query{Kind: KindHasText, Expr: "button", Text: "Shop Now"}},
		{`:has-text('Vehicles')`, Query{Kind: KindHasText, Expr: "", Text: "Vehicles"}},
		{`nav a.primary:has-text("Build \"X\"")`, Query{Kind: KindHasText, Expr: "nav a.primary", Text: `Build "X"`}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			tt.want.Raw = tt.raw
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "text=", "text=/(unclosed/", `button:has-text(Shop)`, "xpath="} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			assert.ErrorIs(t, err, ErrInvalidSelector)
		})
	}
}

func TestQuery_XPath(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"//a", "//a", false},
		{`text="Sign in"`, `//*[text()[normalize-space(.)="Sign in"]]`, false},
		{"text=Sign In", `//*[text()[contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), "sign in")]]`, false},
		{`button:has-text("Go")`, `//button[contains(translate(normalize-space(.), 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'), "go")]`, false},
		{`nav > a:has-text("Go")`, "", true},
		{"text=/go/", "", true},
		{"#id", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			q, err := Parse(tt.raw)
			require.NoError(t, err)
			got, err := q.XPath()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuery_MatchText(t *testing.T) {
	mustParse := func(raw string) Query {
		q, err := Parse(raw)
		require.NoError(t, err)
		return q
	}

	assert.True(t, mustParse("text=search").MatchText("  Search   toyota.com "))
	assert.False(t, mustParse(`text="Search"`).MatchText("Search toyota.com"))
	assert.True(t, mustParse(`text="Search toyota.com"`).MatchText("Search\n toyota.com"))
	assert.True(t, mustParse(`a:has-text("vehicles")`).MatchText("All Vehicles"))
	assert.True(t, mustParse("text=/^all\\s+veh/i").MatchText("All   Vehicles"))
	assert.False(t, mustParse("text=/^all veh/").MatchText("All Vehicles"))
	assert.False(t, mustParse("#x").MatchText("x"))
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, `"plain"`, Literal("plain"))
	assert.Equal(t, `'say "hi"'`, Literal(`say "hi"`))
	assert.Equal(t, `concat("it's ", '"', "quoted", '"')`, Literal(`it's "quoted"`))
}

func TestQuoteCSS(t *testing.T) {
	assert.Equal(t, `"search"`, QuoteCSS("search"))
	assert.Equal(t, `"a \"b\" c\\d"`, QuoteCSS(`a "b" c\d`))
}
