package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGasPricer struct {
	price *big.Int
	err   error
}

func (f *fakeGasPricer) SuggestGasPrice(context.Context) (*big.Int, error) {
	return f.price, f.err
}

func TestCurrent(t *testing.T) {
	e := NewEstimator(&fakeGasPricer{price: big.NewInt(30_000_000_000)}, nil, time.Second, zap.NewNop())
	price, err := e.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(30_000_000_000), price)
}

func TestCurrentAboveMax(t *testing.T) {
	e := NewEstimator(&fakeGasPricer{price: big.NewInt(600_000_000_000)}, big.NewInt(500_000_000_000), time.Second, zap.NewNop())
	_, err := e.Current(context.Background())
	assert.Error(t, err)
}

func TestCurrentUnavailable(t *testing.T) {
	e := NewEstimator(&fakeGasPricer{err: errors.New("rpc down")}, nil, time.Second, zap.NewNop())
	_, err := e.Current(context.Background())
	assert.Error(t, err)
}
