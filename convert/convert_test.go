package convert

import (
	"math/big"
	"testing"

	"github.com/polyarb/polyarb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSettlementUnits(t *testing.T) {
	// 450_000 gas at 30 gwei = 0.0135 native. At 0.50 USDC per native
	// (500_000 six-decimal units) that is 0.00675 USDC = 6750 units.
	snap := &types.MarketSnapshot{
		GasPriceWei:        big.NewInt(30_000_000_000),
		NativeToSettlement: big.NewInt(500_000),
	}

	cost, err := ToSettlementUnits(450_000, snap)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(6750), cost)
}

func TestToSettlementUnitsTruncates(t *testing.T) {
	// 1 gas unit at 1 wei with a tiny rate truncates to zero rather than
	// rounding up.
	snap := &types.MarketSnapshot{
		GasPriceWei:        big.NewInt(1),
		NativeToSettlement: big.NewInt(1),
	}

	cost, err := ToSettlementUnits(1, snap)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cost.Int64())
}

func TestToSettlementUnitsMissingRate(t *testing.T) {
	cases := []*types.MarketSnapshot{
		nil,
		{GasPriceWei: big.NewInt(1)},
		{GasPriceWei: big.NewInt(1), NativeToSettlement: big.NewInt(0)},
		{NativeToSettlement: big.NewInt(1)},
	}

	for _, snap := range cases {
		_, err := ToSettlementUnits(100_000, snap)
		assert.ErrorIs(t, err, ErrRateUnavailable)
	}
}
