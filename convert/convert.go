// Package convert turns gas costs denominated in the native asset into
// settlement-asset units. A wrong conversion can turn a loss into an apparent
// profit, so there is deliberately no fallback rate: when the exchange rate is
// missing the conversion fails and the caller must skip the cycle.
package convert

import (
	"errors"
	"math/big"

	"github.com/polyarb/polyarb/types"
)

// ErrRateUnavailable is returned when the native-to-settlement rate is
// missing or zero. Callers skip the whole scan cycle on it.
var ErrRateUnavailable = errors.New("native to settlement rate unavailable")

var oneNative = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ToSettlementUnits converts a gas expenditure into settlement-asset smallest
// units:
//
//	cost = gasUnits * gasPriceWei * rate / 1e18
//
// where rate is settlement units received per whole native token. Pure
// integer arithmetic, truncating division.
func ToSettlementUnits(gasUnits uint64, snap *types.MarketSnapshot) (*big.Int, error) {
	if snap == nil || snap.GasPriceWei == nil {
		return nil, ErrRateUnavailable
	}
	if snap.NativeToSettlement == nil || snap.NativeToSettlement.Sign() <= 0 {
		return nil, ErrRateUnavailable
	}

	costWei := new(big.Int).Mul(new(big.Int).SetUint64(gasUnits), snap.GasPriceWei)
	cost := new(big.Int).Mul(costWei, snap.NativeToSettlement)
	return cost.Div(cost, oneNative), nil
}
