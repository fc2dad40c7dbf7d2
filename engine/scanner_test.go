package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polyarb/polyarb/convert"
	"github.com/polyarb/polyarb/types"
)

type fixedGas struct {
	price *big.Int
	err   error
}

func (g fixedGas) Current(context.Context) (*big.Int, error) { return g.price, g.err }

type fixedRate struct {
	rate *big.Int
	err  error
}

func (r fixedRate) NativeRate(context.Context, types.Asset, types.Asset) (*big.Int, error) {
	return r.rate, r.err
}

// recordingPolicy returns a canned net profit per leading venue and records
// every cycle it was asked to optimize.
type recordingPolicy struct {
	mu     sync.Mutex
	cycles []types.Cycle
	nets   map[string]int64
	errFor map[string]error
}

func (p *recordingPolicy) Optimize(_ context.Context, _ *Evaluator, cycle types.Cycle, _ *types.MarketSnapshot) (*types.Opportunity, error) {
	p.mu.Lock()
	p.cycles = append(p.cycles, cycle)
	p.mu.Unlock()

	lead := cycle[0].Venue.Name
	if err, ok := p.errFor[lead]; ok {
		return nil, err
	}
	net, ok := p.nets[lead]
	if !ok {
		return nil, nil
	}
	return &types.Opportunity{
		Cycle:       cycle,
		InputAmount: big.NewInt(1_000_000_000),
		NetProfit:   big.NewInt(net),
		GrossProfit: big.NewInt(net),
		LoanPremium: new(big.Int),
		GasCost:     new(big.Int),
	}, nil
}

func testScanner(policy SearchPolicy, venues []types.Venue, gas GasSource, rates RateSource) *Scanner {
	templates := []CycleTemplate{{
		Path:   []types.Asset{testUSDC, testWMATIC},
		Kind:   types.VenueReserves,
		Policy: policy,
	}}
	return NewScanner(nil, templates, venues, gas, rates, testWMATIC, testUSDC, zap.NewNop())
}

func TestScanPicksBestAcrossVenuePairs(t *testing.T) {
	policy := &recordingPolicy{nets: map[string]int64{
		"quickswap": 100,
		"sushiswap": 250,
	}}
	aggVenue := types.Venue{Name: "paraswap", Kind: types.VenueAggregator}
	scanner := testScanner(policy,
		[]types.Venue{venueQuick, venueSushi, aggVenue},
		fixedGas{price: big.NewInt(100_000_000_000)},
		fixedRate{rate: big.NewInt(5_000_000)})

	best, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, big.NewInt(250), best.NetProfit)
	assert.Equal(t, "sushiswap", best.Cycle[0].Venue.Name)

	// Both orderings of the two reserve venues, nothing with the aggregator.
	require.Len(t, policy.cycles, 2)
	for _, c := range policy.cycles {
		for _, leg := range c {
			assert.NotEqual(t, "paraswap", leg.Venue.Name)
		}
	}
}

func TestScanNoOpportunityIsNotAnError(t *testing.T) {
	policy := &recordingPolicy{}
	scanner := testScanner(policy,
		[]types.Venue{venueQuick, venueSushi},
		fixedGas{price: big.NewInt(100_000_000_000)},
		fixedRate{rate: big.NewInt(5_000_000)})

	best, err := scanner.Scan(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, best)
}

func TestScanSkipsFailingCombination(t *testing.T) {
	policy := &recordingPolicy{
		nets:   map[string]int64{"sushiswap": 42},
		errFor: map[string]error{"quickswap": fmt.Errorf("pool gone")},
	}
	scanner := testScanner(policy,
		[]types.Venue{venueQuick, venueSushi},
		fixedGas{price: big.NewInt(100_000_000_000)},
		fixedRate{rate: big.NewInt(5_000_000)})

	best, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, big.NewInt(42), best.NetProfit)
}

func TestScanFailsWithoutGasPrice(t *testing.T) {
	scanner := testScanner(&recordingPolicy{},
		[]types.Venue{venueQuick, venueSushi},
		fixedGas{err: errors.New("rpc down")},
		fixedRate{rate: big.NewInt(5_000_000)})

	_, err := scanner.Scan(context.Background())
	assert.Error(t, err)
}

func TestScanFailsWithoutConversionRate(t *testing.T) {
	scanner := testScanner(&recordingPolicy{},
		[]types.Venue{venueQuick, venueSushi},
		fixedGas{price: big.NewInt(100_000_000_000)},
		fixedRate{err: errors.New("no route")})

	_, err := scanner.Scan(context.Background())
	assert.ErrorIs(t, err, convert.ErrRateUnavailable)
}

func TestScanFailsWithoutEligibleVenues(t *testing.T) {
	scanner := testScanner(&recordingPolicy{},
		[]types.Venue{{Name: "paraswap", Kind: types.VenueAggregator}},
		fixedGas{price: big.NewInt(100_000_000_000)},
		fixedRate{rate: big.NewInt(5_000_000)})

	_, err := scanner.Scan(context.Background())
	assert.Error(t, err)
}

func TestBuildCycleAlternatesVenueRoles(t *testing.T) {
	cycle := buildCycle([]types.Asset{testUSDC, testWMATIC, testWETH}, venueQuick, venueSushi)
	require.NoError(t, cycle.Validate())
	require.Len(t, cycle, 3)

	assert.Equal(t, "quickswap", cycle[0].Venue.Name)
	assert.Equal(t, "sushiswap", cycle[1].Venue.Name)
	assert.Equal(t, "quickswap", cycle[2].Venue.Name)

	assert.Equal(t, testUSDC.Address, cycle[0].SellAsset.Address)
	assert.Equal(t, testUSDC.Address, cycle[2].BuyAsset.Address)
}
