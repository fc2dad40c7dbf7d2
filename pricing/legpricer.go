package pricing

import (
	"context"
	"fmt"
	"math/big"

	"github.com/polyarb/polyarb/types"
)

// LegPricer routes each leg to the source matching its venue kind and fills
// in a configured default when the source has no gas estimate of its own.
type LegPricer struct {
	sources         map[types.VenueKind]Source
	defaultGasUnits uint64
}

// NewLegPricer creates a leg pricer over the given per-kind sources.
// defaultGasUnits is charged for legs whose source returned no estimate.
func NewLegPricer(sources map[types.VenueKind]Source, defaultGasUnits uint64) *LegPricer {
	return &LegPricer{
		sources:         sources,
		defaultGasUnits: defaultGasUnits,
	}
}

// Price quotes one leg. Unavailable sources propagate as ErrUnavailable; a
// venue kind with no registered source is a configuration error, not a
// transient one.
func (p *LegPricer) Price(ctx context.Context, leg types.Leg, sellAmount *big.Int) (*types.Quote, error) {
	source, ok := p.sources[leg.Venue.Kind]
	if !ok {
		return nil, fmt.Errorf("no price source registered for venue kind %q", leg.Venue.Kind)
	}

	quote, err := source.Quote(ctx, leg, sellAmount)
	if err != nil {
		return nil, err
	}
	if quote.GasUnits == 0 {
		quote.GasUnits = p.defaultGasUnits
	}
	return quote, nil
}
