// Package flashloan models the capital source the settlement contract borrows
// from. The engine only needs the premium owed on repayment; the borrow and
// repay themselves happen inside the contract's atomic transaction.
package flashloan

import (
	"fmt"
	"math/big"

	"github.com/polyarb/polyarb/types"
)

// Provider describes a flash loan source and its fee schedule.
type Provider struct {
	Name       string
	PremiumBps int64 // repayment premium in basis points
}

// AaveV3 is the provider wired to the deployed settlement contract.
// The 9 bps premium matches Aave v3's flashLoanSimple fee.
var AaveV3 = Provider{Name: "AaveV3", PremiumBps: 9}

// Premium returns the fee owed for borrowing amount, in the same units.
// Integer basis-point arithmetic; truncating.
func (p Provider) Premium(amount *big.Int) *big.Int {
	return types.ApplyBps(amount, p.PremiumBps)
}

func (p Provider) String() string {
	return fmt.Sprintf("%s(%dbps)", p.Name, p.PremiumBps)
}
