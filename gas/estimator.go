// Package gas reads the chain's current gas price for the per-cycle market
// snapshot.
package gas

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"go.uber.org/zap"
)

// Estimator fetches gas prices with a bounded wait. A price above the
// configured maximum is treated the same as an unavailable one: the scan
// cycle is skipped rather than evaluated against hostile gas conditions.
type Estimator struct {
	client      ethereum.GasPricer
	maxGasPrice *big.Int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewEstimator creates a gas estimator. maxGasPrice may be nil to disable
// the ceiling.
func NewEstimator(client ethereum.GasPricer, maxGasPrice *big.Int, timeout time.Duration, logger *zap.Logger) *Estimator {
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &Estimator{
		client:      client,
		maxGasPrice: maxGasPrice,
		timeout:     timeout,
		logger:      logger,
	}
}

// Current returns the suggested gas price in wei.
func (e *Estimator) Current(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	price, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if e.maxGasPrice != nil && price.Cmp(e.maxGasPrice) > 0 {
		e.logger.Warn("gas price above maximum",
			zap.String("price", price.String()),
			zap.String("max", e.maxGasPrice.String()))
		return nil, fmt.Errorf("gas price %s exceeds maximum %s", price, e.maxGasPrice)
	}
	return price, nil
}
