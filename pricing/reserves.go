package pricing

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/polyarb/polyarb/types"
)

const factoryABIJson = `[
	{"inputs":[{"internalType":"address","name":"tokenA","type":"address"},{"internalType":"address","name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const pairABIJson = `[
	{"inputs":[],"name":"getReserves","outputs":[{"internalType":"uint112","name":"reserve0","type":"uint112"},{"internalType":"uint112","name":"reserve1","type":"uint112"},{"internalType":"uint32","name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token0","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const routerABIJson = `[
	{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

const pairCacheSize = 512

// swapDeadline is baked into each leg's router calldata. Generous relative
// to the scan interval; the on-chain minOut guard is the real protection.
const swapDeadline = 120 * time.Second

// ReserveSource implements Source by reading a venue's constant-product pool
// reserves and computing output with the venue's fee rate. Unlike the
// aggregator, this models the immediate price impact of the trade itself.
type ReserveSource struct {
	caller     ethereum.ContractCaller
	recipient  common.Address // settlement contract, receiver of swap output
	timeout    time.Duration
	factoryABI abi.ABI
	pairABI    abi.ABI
	routerABI  abi.ABI
	pairCache  *lru.Cache // xxhash(factory,tokenA,tokenB) -> common.Address
	logger     *zap.Logger
}

// NewReserveSource creates a reserve-based price source. recipient is the
// address swap output is routed to in the generated calldata.
func NewReserveSource(caller ethereum.ContractCaller, recipient common.Address, timeout time.Duration, logger *zap.Logger) (*ReserveSource, error) {
	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}
	pairABI, err := abi.JSON(strings.NewReader(pairABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	routerABI, err := abi.JSON(strings.NewReader(routerABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}
	cache, err := lru.New(pairCacheSize)
	if err != nil {
		return nil, err
	}
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	return &ReserveSource{
		caller:     caller,
		recipient:  recipient,
		timeout:    timeout,
		factoryABI: factoryABI,
		pairABI:    pairABI,
		routerABI:  routerABI,
		pairCache:  cache,
		logger:     logger,
	}, nil
}

// Quote prices the leg from pool reserves and attaches V2 router calldata for
// execution. Missing pools, empty reserves, and chain read failures all
// resolve to ErrUnavailable.
func (s *ReserveSource) Quote(ctx context.Context, leg types.Leg, sellAmount *big.Int) (*types.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reserveIn, reserveOut, err := s.orientedReserves(ctx, leg)
	if err != nil {
		s.logger.Warn("reserve quote failed",
			zap.String("sell", leg.SellAsset.Symbol),
			zap.String("buy", leg.BuyAsset.Symbol),
			zap.String("venue", leg.Venue.Name),
			zap.Error(err))
		return nil, fmt.Errorf("reserves %s->%s on %s: %w", leg.SellAsset.Symbol, leg.BuyAsset.Symbol, leg.Venue.Name, ErrUnavailable)
	}

	amountOut := GetAmountOut(sellAmount, reserveIn, reserveOut, leg.Venue.FeeBps)
	if amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("reserves %s->%s on %s: zero output: %w", leg.SellAsset.Symbol, leg.BuyAsset.Symbol, leg.Venue.Name, ErrUnavailable)
	}

	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
	path := []common.Address{leg.SellAsset.Address, leg.BuyAsset.Address}
	callData, err := s.routerABI.Pack("swapExactTokensForTokens",
		new(big.Int).Set(sellAmount), big.NewInt(0), path, s.recipient, deadline)
	if err != nil {
		return nil, fmt.Errorf("pack swap calldata: %w", err)
	}

	return &types.Quote{
		SellAsset:  leg.SellAsset.Address,
		BuyAsset:   leg.BuyAsset.Address,
		SellAmount: new(big.Int).Set(sellAmount),
		BuyAmount:  amountOut,
		CallData:   callData,
		VenueName:  leg.Venue.Name,
	}, nil
}

// GetAmountOut applies the constant-product formula with a basis-point fee:
//
//	out = in*(10000-fee) * reserveOut / (reserveIn*10000 + in*(10000-fee))
//
// Integer arithmetic at native precision.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(10000-feeBps))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(
		new(big.Int).Mul(reserveIn, big.NewInt(10000)),
		amountInWithFee,
	)
	return numerator.Div(numerator, denominator)
}

// orientedReserves returns (reserveIn, reserveOut) for the leg's sell/buy
// direction, resolving token0 ordering on the pair.
func (s *ReserveSource) orientedReserves(ctx context.Context, leg types.Leg) (*big.Int, *big.Int, error) {
	pair, err := s.pairAddress(ctx, leg.Venue.Factory, leg.SellAsset.Address, leg.BuyAsset.Address)
	if err != nil {
		return nil, nil, err
	}

	raw, err := s.call(ctx, pair, s.pairABI, "getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("getReserves: %w", err)
	}
	outs, err := s.pairABI.Unpack("getReserves", raw)
	if err != nil || len(outs) < 2 {
		return nil, nil, fmt.Errorf("decode getReserves: %w", err)
	}
	reserve0, ok0 := outs[0].(*big.Int)
	reserve1, ok1 := outs[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("unexpected getReserves output types")
	}

	raw, err = s.call(ctx, pair, s.pairABI, "token0")
	if err != nil {
		return nil, nil, fmt.Errorf("token0: %w", err)
	}
	outs, err = s.pairABI.Unpack("token0", raw)
	if err != nil || len(outs) < 1 {
		return nil, nil, fmt.Errorf("decode token0: %w", err)
	}
	token0, ok := outs[0].(common.Address)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected token0 output type")
	}

	if token0 == leg.SellAsset.Address {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}

// pairAddress resolves the pool for a token pair on a venue factory.
// Results are immutable once a pool exists, so they are cached.
func (s *ReserveSource) pairAddress(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	key := pairCacheKey(factory, tokenA, tokenB)
	if cached, ok := s.pairCache.Get(key); ok {
		return cached.(common.Address), nil
	}

	data, err := s.factoryABI.Pack("getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	raw, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("getPair: %w", err)
	}
	outs, err := s.factoryABI.Unpack("getPair", raw)
	if err != nil || len(outs) < 1 {
		return common.Address{}, fmt.Errorf("decode getPair: %w", err)
	}
	pair, ok := outs[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getPair output type")
	}
	if pair == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no pool for pair")
	}

	s.pairCache.Add(key, pair)
	return pair, nil
}

func (s *ReserveSource) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]byte, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	return s.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func pairCacheKey(factory, tokenA, tokenB common.Address) uint64 {
	h := xxhash.New()
	h.Write(factory.Bytes())
	h.Write(tokenA.Bytes())
	h.Write(tokenB.Bytes())
	return h.Sum64()
}
