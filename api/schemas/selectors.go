package schemas

import (
	"time"
)

// Strategy identifies which part of the fallback chain produced a candidate.
type Strategy string

const (
	StrategyHistory  Strategy = "history"
	StrategySemantic Strategy = "semantic"
	StrategyFuzzy    Strategy = "fuzzy-text"
	StrategyPosition Strategy = "position"
	StrategyExternal Strategy = "external-suggestion"
)

// DefaultStrategyOrder is the fixed order the chain walks.
func DefaultStrategyOrder() []Strategy {
	return []Strategy{
		StrategyHistory,
		StrategySemantic,
		StrategyFuzzy,
		StrategyPosition,
		StrategyExternal,
	}
}

// ParseStrategy maps a configured strategy name onto a Strategy.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case StrategyHistory, StrategySemantic, StrategyFuzzy, StrategyPosition, StrategyExternal:
		return Strategy(s), true
	}
	// Accept the short form used in config files.
	switch s {
	case "fuzzy":
		return StrategyFuzzy, true
	case "external", "llm":
		return StrategyExternal, true
	}
	return "", false
}

// Candidate is one alternative selector to probe. Candidates are never persisted.
type Candidate struct {
	Selector string   `json:"selector"`
	Strategy Strategy `json:"strategy"`
}

// ResolutionState is a node of the resolution state machine.
type ResolutionState string

const (
	StateNotStarted     ResolutionState = "NotStarted"
	StateTryingHistory  ResolutionState = "TryingHistory"
	StateTryingSemantic ResolutionState = "TryingSemantic"
	StateTryingFuzzy    ResolutionState = "TryingFuzzy"
	StateTryingPosition ResolutionState = "TryingPosition"
	StateTryingExternal ResolutionState = "TryingExternal"
	StateResolved       ResolutionState = "Resolved"
	StateExhausted      ResolutionState = "Exhausted"
)

// StateFor returns the state entered while a strategy is being tried.
func StateFor(s Strategy) ResolutionState {
	switch s {
	case StrategyHistory:
		return StateTryingHistory
	case StrategySemantic:
		return StateTryingSemantic
	case StrategyFuzzy:
		return StateTryingFuzzy
	case StrategyPosition:
		return StateTryingPosition
	case StrategyExternal:
		return StateTryingExternal
	}
	return StateNotStarted
}

// IsTerminal reports whether no further transitions are possible.
func (s ResolutionState) IsTerminal() bool {
	return s == StateResolved || s == StateExhausted
}

// StrategyReport records what a single strategy did during a resolution. An
// empty Err with zero Candidates means the strategy had nothing to offer; a
// non-empty Err means it failed.
type StrategyReport struct {
	Strategy   Strategy `json:"strategy"`
	Candidates int      `json:"candidates"`
	Probed     int      `json:"probed"`
	Err        string   `json:"error,omitempty"`
}

// ResolutionOutcome is the result of one pass through the fallback chain.
// Resolved and Strategy are empty when the chain was exhausted.
type ResolutionOutcome struct {
	ID             string            `json:"id"`
	Original       string            `json:"original"`
	Resolved       string            `json:"resolved,omitempty"`
	Strategy       Strategy          `json:"strategy,omitempty"`
	State          ResolutionState   `json:"state"`
	Attempts       int               `json:"attempts"`
	Trace          []ResolutionState `json:"trace"`
	Reports        []StrategyReport  `json:"reports"`
	BudgetExceeded bool              `json:"budget_exceeded,omitempty"`
	Duration       time.Duration     `json:"duration"`
}

// IsResolved reports whether a replacement selector was found.
func (o *ResolutionOutcome) IsResolved() bool {
	return o != nil && o.State == StateResolved && o.Resolved != ""
}

// SuggestedSelector is a selector proposed for a natural-language element
// description, together with the model's own reliability estimate
// ("high", "medium" or "low").
type SuggestedSelector struct {
	Selector    string `json:"selector"`
	Strategy    string `json:"strategy"`
	Reliability string `json:"reliability"`
}
