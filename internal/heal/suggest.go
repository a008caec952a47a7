package heal

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/llmutil"
)

const suggestPrompt = `Generate robust Playwright selectors for the following element:
%s

Create 5 different selector strategies, prioritizing:
1. ARIA roles and labels
2. Data attributes (data-testid)
3. Semantic HTML
4. Stable text content
5. CSS classes (as last resort)

Return as JSON array of objects:
[
    {"selector": "selector string", "strategy": "strategy name", "reliability": "high|medium|low"}
]`

// Suggest asks the language model for selectors matching a plain-language
// element description, e.g. "the search box in the global header".
func Suggest(ctx context.Context, client schemas.LLMClient, description string) ([]schemas.SuggestedSelector, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("element description must not be empty")
	}
	if client == nil {
		return nil, ErrNoLLMClient
	}

	reply, err := client.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: fmt.Sprintf(suggestPrompt, description),
		Tier:       schemas.TierPowerful,
		Options:    schemas.GenerationOptions{Temperature: 0.2, MaxTokens: 1000},
	})
	if err != nil {
		return nil, fmt.Errorf("selector suggestion request failed: %w", err)
	}

	parsed, err := llmutil.ParseJSONResponse[[]schemas.SuggestedSelector](reply)
	if err != nil {
		return nil, err
	}

	out := make([]schemas.SuggestedSelector, 0, len(*parsed))
	for _, s := range *parsed {
		s.Selector = strings.TrimSpace(s.Selector)
		if s.Selector == "" {
			continue
		}
		s.Reliability = strings.ToLower(strings.TrimSpace(s.Reliability))
		out = append(out, s)
	}
	return out, nil
}
