// Package pricing provides the venue price sources and the leg pricer. Two
// interchangeable strategies implement Source: the HTTP aggregator (already
// impact-adjusted quotes) and direct constant-product pool reserves (models
// the immediate impact of the trade itself). The evaluator only sees Source.
package pricing

import (
	"context"
	"errors"
	"math/big"

	"github.com/polyarb/polyarb/types"
)

// ErrUnavailable is returned when a source cannot produce a quote: transport
// failure, error payload, missing pool, or timeout. Maps to the
// DataUnavailable failure class; callers skip the combination and continue.
var ErrUnavailable = errors.New("price source unavailable")

// Source prices a single leg for a given input amount.
type Source interface {
	// Quote returns the priced leg or an error wrapping ErrUnavailable.
	// Implementations must bound their wait and never block a scan cycle
	// indefinitely.
	Quote(ctx context.Context, leg types.Leg, sellAmount *big.Int) (*types.Quote, error)
}
