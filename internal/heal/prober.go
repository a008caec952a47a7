package heal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
)

// Prober tries candidates against the live document in order.
type Prober struct {
	doc    schemas.Document
	logger *zap.Logger
}

func NewProber(doc schemas.Document, logger *zap.Logger) *Prober {
	return &Prober{doc: doc, logger: logger.Named("prober")}
}

// Probe returns the first candidate that becomes visible within perCandidate,
// and the number of candidates tried. Resolution errors of any kind count as
// "not found". A done context stops probing early.
func (p *Prober) Probe(ctx context.Context, candidates []schemas.Candidate, perCandidate time.Duration) (*schemas.Candidate, int) {
	attempts := 0
	for i := range candidates {
		if ctx.Err() != nil {
			return nil, attempts
		}
		attempts++
		c := candidates[i]
		if err := p.try(ctx, c.Selector, perCandidate); err != nil {
			p.logger.Debug("Candidate did not resolve",
				zap.String("selector", c.Selector),
				zap.String("strategy", string(c.Strategy)),
				zap.Error(err))
			continue
		}
		return &c, attempts
	}
	return nil, attempts
}

func (p *Prober) try(ctx context.Context, sel string, timeout time.Duration) error {
	el, err := p.doc.Resolve(ctx, sel)
	if err != nil {
		return err
	}
	return el.WaitVisible(ctx, timeout)
}
