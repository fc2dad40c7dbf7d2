package engine

import (
	"context"
	"errors"
	"math/big"

	"github.com/polyarb/polyarb/convert"
	"github.com/polyarb/polyarb/pricing"
	"github.com/polyarb/polyarb/types"
)

// SearchPolicy searches the input-amount space of a fixed cycle for the
// evaluation with the highest net profit. Policies tolerate individual
// candidates failing to evaluate; a nil opportunity with nil error means no
// candidate evaluated successfully.
type SearchPolicy interface {
	Optimize(ctx context.Context, eval *Evaluator, cycle types.Cycle, snap *types.MarketSnapshot) (*types.Opportunity, error)
}

// CandidateSet evaluates a fixed ascending list of input amounts. Used for
// aggregator-priced cycles, where the quote curve is opaque and no marginal
// reasoning is possible.
type CandidateSet struct {
	Amounts []*big.Int
}

// Optimize keeps the candidate with the maximum net profit.
func (p CandidateSet) Optimize(ctx context.Context, eval *Evaluator, cycle types.Cycle, snap *types.MarketSnapshot) (*types.Opportunity, error) {
	var best *types.Opportunity
	for _, amount := range p.Amounts {
		opp, err := eval.Evaluate(ctx, cycle, amount, snap)
		if err != nil {
			if skippable(err) {
				continue
			}
			return nil, err
		}
		if best == nil || opp.NetProfit.Cmp(best.NetProfit) > 0 {
			best = opp
		}
	}
	return best, nil
}

// ExponentialSweep starts at Seed and doubles the input amount Steps times,
// keeping the best evaluation. The constant-product output is concave in
// input size, so doubling brackets the optimum; this is a coarse bracketing
// search, not an exact one.
type ExponentialSweep struct {
	Seed  *big.Int
	Steps int
}

// Optimize runs the doubling sweep.
func (p ExponentialSweep) Optimize(ctx context.Context, eval *Evaluator, cycle types.Cycle, snap *types.MarketSnapshot) (*types.Opportunity, error) {
	var best *types.Opportunity
	amount := new(big.Int).Set(p.Seed)
	for i := 0; i < p.Steps; i++ {
		opp, err := eval.Evaluate(ctx, cycle, amount, snap)
		if err != nil && !skippable(err) {
			return nil, err
		}
		if err == nil && (best == nil || opp.NetProfit.Cmp(best.NetProfit) > 0) {
			best = opp
		}
		amount = new(big.Int).Lsh(amount, 1)
	}
	return best, nil
}

// skippable reports whether an evaluation failure only disqualifies this
// candidate. Rate-conversion failures are not skippable: without a rate the
// whole scan cycle must be abandoned rather than costed at zero gas.
func skippable(err error) bool {
	if errors.Is(err, convert.ErrRateUnavailable) {
		return false
	}
	return errors.Is(err, pricing.ErrUnavailable)
}
