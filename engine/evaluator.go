// Package engine contains the arbitrage opportunity engine: cycle
// evaluation, trade-size search, scan orchestration, and scheduling.
package engine

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/polyarb/polyarb/convert"
	"github.com/polyarb/polyarb/flashloan"
	"github.com/polyarb/polyarb/pricing"
	"github.com/polyarb/polyarb/types"
)

// LegPricer prices one leg of a cycle.
type LegPricer interface {
	Price(ctx context.Context, leg types.Leg, sellAmount *big.Int) (*types.Quote, error)
}

// EvaluatorConfig carries the cost model applied to every cycle.
type EvaluatorConfig struct {
	Provider        flashloan.Provider
	SlippageBps     int64
	BaseOverheadGas uint64 // flash loan plus contract overhead on top of per-leg gas
}

// Evaluator prices a full cycle at a given input amount and produces a
// costed Opportunity. All amount arithmetic is integer at native precision.
type Evaluator struct {
	pricer LegPricer
	cfg    EvaluatorConfig
	logger *zap.Logger
}

// NewEvaluator creates an opportunity evaluator.
func NewEvaluator(pricer LegPricer, cfg EvaluatorConfig, logger *zap.Logger) *Evaluator {
	return &Evaluator{pricer: pricer, cfg: cfg, logger: logger}
}

// Evaluate chains the cycle's legs, each fed by the previous leg's output,
// and costs the result against the shared snapshot. Returns an error
// wrapping pricing.ErrUnavailable when any leg cannot be priced (skip this
// candidate) or convert.ErrRateUnavailable when gas cannot be converted
// (skip the whole scan cycle).
func (e *Evaluator) Evaluate(ctx context.Context, cycle types.Cycle, inputAmount *big.Int, snap *types.MarketSnapshot) (*types.Opportunity, error) {
	if err := cycle.Validate(); err != nil {
		return nil, err
	}
	if inputAmount == nil || inputAmount.Sign() <= 0 {
		return nil, fmt.Errorf("input amount must be positive")
	}

	quotes := make([]*types.Quote, 0, len(cycle))
	amount := new(big.Int).Set(inputAmount)
	var legGasUnits uint64

	for i, leg := range cycle {
		quote, err := e.pricer.Price(ctx, leg, amount)
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		if quote.BuyAmount == nil || quote.BuyAmount.Sign() <= 0 {
			return nil, fmt.Errorf("leg %d returned zero output: %w", i, pricing.ErrUnavailable)
		}
		quotes = append(quotes, quote)
		legGasUnits += quote.GasUnits
		amount = quote.BuyAmount
	}

	// Closed loop: final output is in the loan asset, so the subtraction
	// is denomination-safe.
	finalOutput := amount
	grossProfit := new(big.Int).Sub(finalOutput, inputAmount)
	loanPremium := e.cfg.Provider.Premium(inputAmount)

	totalGasUnits := legGasUnits + e.cfg.BaseOverheadGas
	gasCost, err := convert.ToSettlementUnits(totalGasUnits, snap)
	if err != nil {
		return nil, fmt.Errorf("gas conversion: %w", err)
	}

	netProfit := new(big.Int).Sub(grossProfit, loanPremium)
	netProfit.Sub(netProfit, gasCost)

	minOut := new(big.Int).Sub(finalOutput, types.ApplyBps(finalOutput, e.cfg.SlippageBps))

	return &types.Opportunity{
		Cycle:               cycle,
		InputAmount:         new(big.Int).Set(inputAmount),
		Legs:                quotes,
		GrossProfit:         grossProfit,
		LoanPremium:         loanPremium,
		GasCost:             gasCost,
		NetProfit:           netProfit,
		MinOutAfterSlippage: minOut,
		TotalGasUnits:       totalGasUnits,
	}, nil
}
