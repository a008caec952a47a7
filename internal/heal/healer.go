// Package heal resolves selectors that stopped matching by walking a fixed
// chain of strategies (history, semantic, fuzzy-text, position and external
// suggestion) until one of their candidates is visible in the document.
package heal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
)

// ErrEmptySelector is returned when Resolve is called without a selector.
var ErrEmptySelector = errors.New("failed selector must not be empty")

const defaultPerCandidateTimeout = 5 * time.Second

// Options configures a Healer.
type Options struct {
	// PerCandidateTimeout is used when Resolve is given no timeout.
	PerCandidateTimeout time.Duration
	// ChainBudget bounds a whole resolution. Zero means unbounded.
	ChainBudget time.Duration
}

// Healer is the resolution orchestrator. It is not safe for concurrent use;
// callers serialise access to the document anyway.
type Healer struct {
	history    *History
	prober     *Prober
	generators map[schemas.Strategy]Generator
	order      []schemas.Strategy
	opts       Options
	logger     *zap.Logger
}

// NewHealer wires the given generators into the chain. Generators are always
// walked in the fixed strategy order, whatever order they are passed in; a
// strategy without a generator is skipped.
func NewHealer(doc schemas.Document, history *History, generators []Generator, opts Options, logger *zap.Logger) *Healer {
	if opts.PerCandidateTimeout <= 0 {
		opts.PerCandidateTimeout = defaultPerCandidateTimeout
	}
	h := &Healer{
		history:    history,
		prober:     NewProber(doc, logger),
		generators: make(map[schemas.Strategy]Generator, len(generators)),
		opts:       opts,
		logger:     logger.Named("healer"),
	}
	for _, g := range generators {
		h.generators[g.Strategy()] = g
	}
	for _, s := range schemas.DefaultStrategyOrder() {
		if _, ok := h.generators[s]; ok {
			h.order = append(h.order, s)
		}
	}
	return h
}

// NewFromConfig builds the standard chain with the strategies enabled in cfg.
// llm may be nil, in which case the external strategy reports ErrNoLLMClient.
func NewFromConfig(doc schemas.Document, history *History, llm schemas.LLMClient, cfg config.HealingConfig, logger *zap.Logger) *Healer {
	var gens []Generator
	if cfg.StrategyEnabled(string(schemas.StrategyHistory)) {
		gens = append(gens, NewHistoryGenerator(history))
	}
	if cfg.StrategyEnabled(string(schemas.StrategySemantic)) {
		gens = append(gens, SemanticGenerator{})
	}
	if cfg.StrategyEnabled(string(schemas.StrategyFuzzy)) {
		gens = append(gens, NewFuzzyTextGenerator(cfg.FuzzyPrefixLength))
	}
	if cfg.StrategyEnabled(string(schemas.StrategyPosition)) {
		gens = append(gens, PositionGenerator{})
	}
	if cfg.StrategyEnabled(string(schemas.StrategyExternal)) {
		gens = append(gens, NewExternalGenerator(llm, doc, ExternalOptions{
			ContextSize:    cfg.HTMLContextSize,
			MaxSuggestions: cfg.MaxExternalSuggestions,
			Timeout:        cfg.ExternalTimeout,
		}, logger))
	}
	return NewHealer(doc, history, gens, Options{
		PerCandidateTimeout: cfg.PerCandidateTimeout,
		ChainBudget:         cfg.ChainBudget,
	}, logger)
}

// Strategies returns the active strategies in the order they are tried.
func (h *Healer) Strategies() []schemas.Strategy {
	return append([]schemas.Strategy(nil), h.order...)
}

// History exposes the history store the healer records into.
func (h *Healer) History() *History {
	return h.history
}

// Resolve runs the fallback chain for failed, waiting up to perAttempt for
// each candidate (the configured default when perAttempt is zero). It returns
// an error only for caller mistakes; an exhausted chain is a normal outcome.
func (h *Healer) Resolve(ctx context.Context, failed string, perAttempt time.Duration) (*schemas.ResolutionOutcome, error) {
	failed = strings.TrimSpace(failed)
	if failed == "" {
		return nil, ErrEmptySelector
	}
	if perAttempt <= 0 {
		perAttempt = h.opts.PerCandidateTimeout
	}

	start := time.Now()
	outcome := &schemas.ResolutionOutcome{
		ID:       uuid.NewString(),
		Original: failed,
		State:    schemas.StateNotStarted,
		Trace:    []schemas.ResolutionState{schemas.StateNotStarted},
	}
	logger := h.logger.With(zap.String("resolution_id", outcome.ID), zap.String("selector", failed))

	chainCtx := ctx
	if h.opts.ChainBudget > 0 {
		var cancel context.CancelFunc
		chainCtx, cancel = context.WithTimeout(ctx, h.opts.ChainBudget)
		defer cancel()
	}

	for _, strategy := range h.order {
		if err := chainCtx.Err(); err != nil {
			outcome.BudgetExceeded = h.opts.ChainBudget > 0 && ctx.Err() == nil
			logger.Warn("Stopping resolution early", zap.Bool("budget_exceeded", outcome.BudgetExceeded), zap.Error(err))
			break
		}

		h.transition(outcome, schemas.StateFor(strategy))
		report := schemas.StrategyReport{Strategy: strategy}

		candidates, err := h.generators[strategy].Generate(chainCtx, failed)
		if err != nil {
			report.Err = err.Error()
			outcome.Reports = append(outcome.Reports, report)
			logger.Warn("Strategy failed to produce candidates",
				zap.String("strategy", string(strategy)), zap.Error(err))
			continue
		}
		report.Candidates = len(candidates)

		winner, attempts := h.prober.Probe(chainCtx, candidates, perAttempt)
		report.Probed = attempts
		outcome.Attempts += attempts
		outcome.Reports = append(outcome.Reports, report)

		if winner == nil {
			logger.Debug("Strategy exhausted",
				zap.String("strategy", string(strategy)),
				zap.Int("candidates", len(candidates)),
				zap.Int("probed", attempts))
			continue
		}

		outcome.Resolved = winner.Selector
		outcome.Strategy = winner.Strategy
		h.transition(outcome, schemas.StateResolved)
		outcome.Duration = time.Since(start)

		// Persisting must not be cut short by the chain budget.
		if err := h.history.Record(context.WithoutCancel(ctx), failed, winner.Selector); err != nil {
			logger.Warn("Failed to persist healed selector", zap.Error(err))
		}
		logger.Info("Selector healed",
			zap.String("resolved", winner.Selector),
			zap.String("strategy", string(winner.Strategy)),
			zap.Int("attempts", outcome.Attempts),
			zap.Duration("duration", outcome.Duration))
		return outcome, nil
	}

	if chainCtx.Err() != nil && h.opts.ChainBudget > 0 && ctx.Err() == nil {
		outcome.BudgetExceeded = true
	}
	h.transition(outcome, schemas.StateExhausted)
	outcome.Duration = time.Since(start)
	logger.Warn("Selector could not be healed",
		zap.Int("attempts", outcome.Attempts),
		zap.Bool("budget_exceeded", outcome.BudgetExceeded),
		zap.Duration("duration", outcome.Duration))
	return outcome, nil
}

func (h *Healer) transition(o *schemas.ResolutionOutcome, next schemas.ResolutionState) {
	if o.State.IsTerminal() {
		panic(fmt.Sprintf("heal: transition from terminal state %s to %s", o.State, next))
	}
	o.State = next
	o.Trace = append(o.Trace, next)
}
