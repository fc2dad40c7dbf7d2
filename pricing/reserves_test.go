package pricing

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polyarb/polyarb/types"
)

var (
	testFactory = common.HexToAddress("0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32")
	testPair    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testUSDC    = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	testWMATIC  = common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270")
	testTarget  = common.HexToAddress("0xbFB12a88236aA3569d95ae645dAa0BC300901168")
)

// fakeCaller answers factory and pair view calls from canned values.
type fakeCaller struct {
	token0   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
	pair     common.Address
	err      error

	factoryABI abi.ABI
	pairABI    abi.ABI
}

func newFakeCaller(t *testing.T, token0 common.Address, reserve0, reserve1 *big.Int) *fakeCaller {
	t.Helper()
	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJson))
	require.NoError(t, err)
	pairABI, err := abi.JSON(strings.NewReader(pairABIJson))
	require.NoError(t, err)
	return &fakeCaller{
		token0:     token0,
		reserve0:   reserve0,
		reserve1:   reserve1,
		pair:       testPair,
		factoryABI: factoryABI,
		pairABI:    pairABI,
	}
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	switch {
	case *msg.To == testFactory:
		return f.factoryABI.Methods["getPair"].Outputs.Pack(f.pair)
	case *msg.To == f.pair && len(msg.Data) >= 4:
		selector := [4]byte{msg.Data[0], msg.Data[1], msg.Data[2], msg.Data[3]}
		if selector == [4]byte(f.pairABI.Methods["getReserves"].ID[:4]) {
			return f.pairABI.Methods["getReserves"].Outputs.Pack(f.reserve0, f.reserve1, uint32(0))
		}
		return f.pairABI.Methods["token0"].Outputs.Pack(f.token0)
	}
	return nil, errors.New("unexpected call")
}

func testLeg(sell, buy types.Asset) types.Leg {
	return types.Leg{
		SellAsset: sell,
		BuyAsset:  buy,
		Venue: types.Venue{
			Name:    "QuickSwap",
			Kind:    types.VenueReserves,
			Factory: testFactory,
			Router:  common.HexToAddress("0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff"),
			FeeBps:  30,
		},
	}
}

func TestGetAmountOut(t *testing.T) {
	// reserveIn=1_000_000, reserveOut=500_000, fee=0.3%, amountIn=1000
	// -> 1000*0.997*500000 / (1000000 + 1000*0.997) ~= 498.00
	out := GetAmountOut(big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(500_000), 30)
	assert.Equal(t, big.NewInt(498), out)
}

func TestGetAmountOutChainedLegs(t *testing.T) {
	// Three hops compound the formula; each hop feeds the next input.
	amount := big.NewInt(1000)
	for i := 0; i < 3; i++ {
		amount = GetAmountOut(amount, big.NewInt(1_000_000), big.NewInt(1_000_000), 30)
	}
	// Each hop loses roughly 0.3% to the fee plus impact: 1000 -> 996 -> 992 -> 988.
	assert.Equal(t, big.NewInt(988), amount)
}

func TestGetAmountOutZeroInputs(t *testing.T) {
	assert.Equal(t, int64(0), GetAmountOut(big.NewInt(0), big.NewInt(1000), big.NewInt(1000), 30).Int64())
	assert.Equal(t, int64(0), GetAmountOut(big.NewInt(10), big.NewInt(0), big.NewInt(1000), 30).Int64())
	assert.Equal(t, int64(0), GetAmountOut(big.NewInt(10), big.NewInt(1000), big.NewInt(0), 30).Int64())
}

func TestReserveSourceQuote(t *testing.T) {
	usdc := types.Asset{Symbol: "USDC", Address: testUSDC, Decimals: 6}
	wmatic := types.Asset{Symbol: "WMATIC", Address: testWMATIC, Decimals: 18}

	caller := newFakeCaller(t, testUSDC, big.NewInt(1_000_000), big.NewInt(500_000))
	source, err := NewReserveSource(caller, testTarget, time.Second, zap.NewNop())
	require.NoError(t, err)

	quote, err := source.Quote(context.Background(), testLeg(usdc, wmatic), big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(498), quote.BuyAmount)
	assert.Equal(t, big.NewInt(1000), quote.SellAmount)
	assert.NotEmpty(t, quote.CallData)
	assert.Equal(t, "QuickSwap", quote.VenueName)
	// The source has no gas estimate of its own; the leg pricer fills it in.
	assert.Zero(t, quote.GasUnits)
}

func TestReserveSourceOrientsBySellToken(t *testing.T) {
	usdc := types.Asset{Symbol: "USDC", Address: testUSDC, Decimals: 6}
	wmatic := types.Asset{Symbol: "WMATIC", Address: testWMATIC, Decimals: 18}

	// token0 is WMATIC, so selling USDC must flip reserve order.
	caller := newFakeCaller(t, testWMATIC, big.NewInt(500_000), big.NewInt(1_000_000))
	source, err := NewReserveSource(caller, testTarget, time.Second, zap.NewNop())
	require.NoError(t, err)

	quote, err := source.Quote(context.Background(), testLeg(usdc, wmatic), big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(498), quote.BuyAmount)
}

func TestReserveSourceUnavailableOnChainError(t *testing.T) {
	caller := newFakeCaller(t, testUSDC, big.NewInt(1), big.NewInt(1))
	caller.err = errors.New("rpc timeout")
	source, err := NewReserveSource(caller, testTarget, time.Second, zap.NewNop())
	require.NoError(t, err)

	usdc := types.Asset{Symbol: "USDC", Address: testUSDC, Decimals: 6}
	wmatic := types.Asset{Symbol: "WMATIC", Address: testWMATIC, Decimals: 18}
	_, err = source.Quote(context.Background(), testLeg(usdc, wmatic), big.NewInt(1000))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReserveSourceMissingPool(t *testing.T) {
	caller := newFakeCaller(t, testUSDC, big.NewInt(1), big.NewInt(1))
	caller.pair = common.Address{}
	source, err := NewReserveSource(caller, testTarget, time.Second, zap.NewNop())
	require.NoError(t, err)

	usdc := types.Asset{Symbol: "USDC", Address: testUSDC, Decimals: 6}
	wmatic := types.Asset{Symbol: "WMATIC", Address: testWMATIC, Decimals: 18}
	_, err = source.Quote(context.Background(), testLeg(usdc, wmatic), big.NewInt(1000))
	assert.ErrorIs(t, err, ErrUnavailable)
}
