package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/polyarb/polyarb/convert"
	"github.com/polyarb/polyarb/types"
)

// CycleTemplate is a configured asset loop plus the size-search policy used
// on it. Path[0] is the loan asset; the closing leg back to Path[0] is
// implied. Only venues of the matching kind are assigned to its legs.
type CycleTemplate struct {
	Path   []types.Asset
	Kind   types.VenueKind
	Policy SearchPolicy
}

// GasSource supplies the current gas price for the snapshot.
type GasSource interface {
	Current(ctx context.Context) (*big.Int, error)
}

// RateSource supplies the settlement value of one whole native token.
type RateSource interface {
	NativeRate(ctx context.Context, native, settlement types.Asset) (*big.Int, error)
}

// Scanner runs one full scan cycle: refresh the market snapshot, enumerate
// every (template, venue-role) combination, size-optimize each, and keep the
// single best opportunity.
type Scanner struct {
	evaluator  *Evaluator
	templates  []CycleTemplate
	venues     []types.Venue
	gas        GasSource
	rates      RateSource
	native     types.Asset
	settlement types.Asset
	logger     *zap.Logger
}

// NewScanner creates a scan cycle controller.
func NewScanner(evaluator *Evaluator, templates []CycleTemplate, venues []types.Venue, gas GasSource, rates RateSource, native, settlement types.Asset, logger *zap.Logger) *Scanner {
	return &Scanner{
		evaluator:  evaluator,
		templates:  templates,
		venues:     venues,
		gas:        gas,
		rates:      rates,
		native:     native,
		settlement: settlement,
		logger:     logger,
	}
}

// Scan returns the best opportunity of this cycle, or nil when no
// combination produced one — a normal outcome, not an error. A non-nil
// error means the whole cycle was skipped (snapshot or rate unavailable).
func (s *Scanner) Scan(ctx context.Context) (*types.Opportunity, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	cycles := s.enumerate()
	if len(cycles) == 0 {
		return nil, fmt.Errorf("no cycle/venue combinations configured")
	}

	// Combinations are independent; fan out and join before selecting the
	// maximum. Leg chaining inside each evaluation stays sequential.
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		best *types.Opportunity
	)
	for _, combo := range cycles {
		wg.Add(1)
		go func(cycle types.Cycle, policy SearchPolicy) {
			defer wg.Done()

			opp, err := policy.Optimize(ctx, s.evaluator, cycle, snap)
			if err != nil {
				s.logger.Warn("combination skipped",
					zap.String("cycle", cycle.String()),
					zap.Error(err))
				return
			}
			if opp == nil {
				return
			}

			mu.Lock()
			if best == nil || opp.NetProfit.Cmp(best.NetProfit) > 0 {
				best = opp
			}
			mu.Unlock()
		}(combo.cycle, combo.policy)
	}
	wg.Wait()

	return best, nil
}

// snapshot refreshes the shared market data exactly once per scan cycle.
// Every evaluation in the cycle ranks against this one snapshot.
func (s *Scanner) snapshot(ctx context.Context) (*types.MarketSnapshot, error) {
	gasPrice, err := s.gas.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	rate, err := s.rates.NativeRate(ctx, s.native, s.settlement)
	if err != nil {
		// No invented fallback rate: the cycle is skipped entirely.
		return nil, fmt.Errorf("%s/%s rate: %w: %v", s.native.Symbol, s.settlement.Symbol, convert.ErrRateUnavailable, err)
	}
	return &types.MarketSnapshot{GasPriceWei: gasPrice, NativeToSettlement: rate}, nil
}

type combination struct {
	cycle  types.Cycle
	policy SearchPolicy
}

// enumerate expands every template across every ordered pair of distinct
// same-kind venues, alternating the buy/sell roles across the cycle's legs.
func (s *Scanner) enumerate() []combination {
	var combos []combination
	for _, tpl := range s.templates {
		eligible := s.eligibleVenues(tpl.Kind)
		for _, buyVenue := range eligible {
			for _, sellVenue := range eligible {
				if buyVenue.Name == sellVenue.Name {
					continue
				}
				combos = append(combos, combination{
					cycle:  buildCycle(tpl.Path, buyVenue, sellVenue),
					policy: tpl.Policy,
				})
			}
		}
	}
	return combos
}

func (s *Scanner) eligibleVenues(kind types.VenueKind) []types.Venue {
	var out []types.Venue
	for _, v := range s.venues {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

// buildCycle closes the asset path into a loop, assigning the buy venue to
// even legs and the sell venue to odd legs.
func buildCycle(path []types.Asset, buyVenue, sellVenue types.Venue) types.Cycle {
	cycle := make(types.Cycle, 0, len(path))
	for i := range path {
		venue := buyVenue
		if i%2 == 1 {
			venue = sellVenue
		}
		cycle = append(cycle, types.Leg{
			SellAsset: path[i],
			BuyAsset:  path[(i+1)%len(path)],
			Venue:     venue,
		})
	}
	return cycle
}
