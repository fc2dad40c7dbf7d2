package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Asset is a token the engine can borrow, trade, or pay gas in.
// Defined once at configuration time and never mutated.
type Asset struct {
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Address  common.Address `json:"address" yaml:"address"`
	Decimals uint8          `json:"decimals" yaml:"decimals"`
}

// VenueKind selects the pricing strategy used for a venue.
type VenueKind string

const (
	// VenueAggregator prices legs through the HTTP price aggregator,
	// restricted to this venue's liquidity source.
	VenueAggregator VenueKind = "aggregator"
	// VenueReserves prices legs directly from the venue's constant-product
	// pool reserves read on-chain.
	VenueReserves VenueKind = "reserves"
)

// Venue is a DEX the engine can price against and route execution through.
type Venue struct {
	Name    string         `json:"name" yaml:"name"`
	Kind    VenueKind      `json:"kind" yaml:"kind"`
	Source  string         `json:"source" yaml:"source"`   // aggregator source name, e.g. "QuickSwap"
	Factory common.Address `json:"factory" yaml:"factory"` // V2 factory for reserve pricing
	Router  common.Address `json:"router" yaml:"router"`   // V2 router for execution calldata
	FeeBps  int64          `json:"fee_bps" yaml:"fee_bps"` // pool fee, e.g. 30 = 0.30%
}

// Leg is one swap of SellAsset for BuyAsset on a single venue.
type Leg struct {
	SellAsset Asset
	BuyAsset  Asset
	Venue     Venue
}

// Cycle is an ordered sequence of legs returning to the starting asset.
// Invariant: length >= 2, leg[i].BuyAsset == leg[i+1].SellAsset, and the
// final BuyAsset equals the first SellAsset.
type Cycle []Leg

// Validate checks the closed-loop invariants.
func (c Cycle) Validate() error {
	if len(c) < 2 {
		return fmt.Errorf("cycle must have at least 2 legs, got %d", len(c))
	}
	for i := 0; i < len(c)-1; i++ {
		if c[i].BuyAsset.Address != c[i+1].SellAsset.Address {
			return fmt.Errorf("leg %d buys %s but leg %d sells %s",
				i, c[i].BuyAsset.Symbol, i+1, c[i+1].SellAsset.Symbol)
		}
	}
	if c[len(c)-1].BuyAsset.Address != c[0].SellAsset.Address {
		return fmt.Errorf("cycle does not close: starts with %s, ends with %s",
			c[0].SellAsset.Symbol, c[len(c)-1].BuyAsset.Symbol)
	}
	return nil
}

// LoanAsset returns the asset borrowed to fund the first leg.
func (c Cycle) LoanAsset() Asset {
	return c[0].SellAsset
}

// String renders the cycle as A->B->A (venue1,venue2).
func (c Cycle) String() string {
	if len(c) == 0 {
		return "<empty>"
	}
	s := c[0].SellAsset.Symbol
	for _, leg := range c {
		s += "->" + leg.BuyAsset.Symbol
	}
	s += " ("
	for i, leg := range c {
		if i > 0 {
			s += ","
		}
		s += leg.Venue.Name
	}
	return s + ")"
}

// Quote is the priced result of one leg. Produced fresh per pricing call and
// never mutated. Stale as soon as any chain state moves; valid only within
// the scan cycle that requested it.
type Quote struct {
	SellAsset  common.Address
	BuyAsset   common.Address
	SellAmount *big.Int
	BuyAmount  *big.Int
	GasUnits   uint64 // implied execution gas, 0 when the source has no estimate
	CallData   []byte // raw payload to execute this leg on-chain
	VenueName  string
}

// Opportunity is a fully costed arbitrage candidate. Computed once per
// evaluation, immutable, and compared only by NetProfit. All amounts are in
// the loan asset's smallest units.
type Opportunity struct {
	Cycle               Cycle
	InputAmount         *big.Int
	Legs                []*Quote
	GrossProfit         *big.Int
	LoanPremium         *big.Int
	GasCost             *big.Int // converted to settlement (loan asset) units
	NetProfit           *big.Int
	MinOutAfterSlippage *big.Int
	TotalGasUnits       uint64
}

// MarketSnapshot is the shared market data for one scan cycle. It is read
// once at cycle start and never refreshed mid-cycle, so every evaluation in
// the cycle ranks against the same prices.
type MarketSnapshot struct {
	// GasPriceWei is the current gas price in native wei.
	GasPriceWei *big.Int
	// NativeToSettlement is the settlement-asset amount (smallest units)
	// received for one whole native token (1e18 wei). Nil when the rate
	// probe failed; conversions must then fail rather than assume a price.
	NativeToSettlement *big.Int
}

// ApplyBps returns amount * bps / 10000 using integer arithmetic.
func ApplyBps(amount *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(bps))
	return out.Div(out, big.NewInt(10000))
}
