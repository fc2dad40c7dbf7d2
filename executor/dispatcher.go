// Package executor submits accepted opportunities to the settlement contract
// and waits for on-chain confirmation.
package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	polytypes "github.com/polyarb/polyarb/types"
)

// settlementABI is the engine-facing surface of the flash-loan settlement
// contract.
const settlementABI = `[
  {
    "type": "function",
    "name": "executeArbitrage",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "asset", "type": "address"},
      {"name": "amount", "type": "uint256"},
      {"name": "params", "type": "bytes"}
    ],
    "outputs": []
  },
  {
    "type": "event",
    "name": "ProfitRealized",
    "anonymous": false,
    "inputs": [
      {"name": "asset", "type": "address", "indexed": true},
      {"name": "amountBorrowed", "type": "uint256", "indexed": false},
      {"name": "premium", "type": "uint256", "indexed": false},
      {"name": "profit", "type": "uint256", "indexed": false}
    ]
  }
]`

// Backend is the chain surface the dispatcher needs. *ethclient.Client
// satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ExecutionError marks a dispatch failure. The scheduler treats these as
// non-fatal: the trade is lost but the loop continues.
type ExecutionError struct {
	Stage  string
	TxHash string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("execution %s (tx %s): %v", e.Stage, e.TxHash, e.Err)
	}
	return fmt.Sprintf("execution %s: %v", e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Config carries the dispatcher's chain parameters.
type Config struct {
	ChainID          *big.Int
	Contract         common.Address // deployed settlement contract
	GasLimitFallback uint64         // used when estimation fails, trade still attempted
	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
}

// Dispatcher builds, signs, submits, and confirms settlement transactions.
type Dispatcher struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	cfg     Config
	abi     abi.ABI
	logger  *zap.Logger
}

// New creates a dispatcher signing with privateKeyHex.
func New(backend Backend, privateKeyHex string, cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(settlementABI))
	if err != nil {
		return nil, fmt.Errorf("parse settlement ABI: %w", err)
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id required")
	}
	if cfg.GasLimitFallback == 0 {
		cfg.GasLimitFallback = 1_500_000
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}

	return &Dispatcher{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		cfg:     cfg,
		abi:     parsed,
		logger:  logger,
	}, nil
}

// From returns the signing address.
func (d *Dispatcher) From() common.Address { return d.from }

// Dispatch submits the opportunity and blocks until the transaction is mined
// or the confirmation window closes. realized is the profit reported by the
// contract's ProfitRealized event, nil when the event was absent from the
// receipt.
func (d *Dispatcher) Dispatch(ctx context.Context, opp *polytypes.Opportunity) (string, *big.Int, error) {
	callData, err := d.buildCallData(opp)
	if err != nil {
		return "", nil, &ExecutionError{Stage: "encode", Err: err}
	}

	nonce, err := d.backend.PendingNonceAt(ctx, d.from)
	if err != nil {
		return "", nil, &ExecutionError{Stage: "nonce", Err: err}
	}
	gasPrice, err := d.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", nil, &ExecutionError{Stage: "gas price", Err: err}
	}

	gasLimit, err := d.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: d.from,
		To:   &d.cfg.Contract,
		Data: callData,
	})
	if err != nil {
		// Estimation reverts on any state change since the scan; the
		// trade may still land, so fall back rather than abort.
		d.logger.Warn("gas estimation failed, using fallback limit",
			zap.Uint64("fallback", d.cfg.GasLimitFallback),
			zap.Error(err))
		gasLimit = d.cfg.GasLimitFallback
	}

	tx := types.NewTransaction(nonce, d.cfg.Contract, big.NewInt(0), gasLimit, gasPrice, callData)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(d.cfg.ChainID), d.key)
	if err != nil {
		return "", nil, &ExecutionError{Stage: "sign", Err: err}
	}

	if err := d.backend.SendTransaction(ctx, signed); err != nil {
		return "", nil, &ExecutionError{Stage: "send", Err: err}
	}
	txHash := signed.Hash()
	d.logger.Info("arbitrage transaction submitted",
		zap.String("tx", txHash.Hex()),
		zap.String("asset", opp.Cycle.LoanAsset().Symbol),
		zap.String("amount", opp.InputAmount.String()),
		zap.Uint64("gas_limit", gasLimit))

	receipt, err := d.waitMined(ctx, txHash)
	if err != nil {
		return txHash.Hex(), nil, &ExecutionError{Stage: "confirm", TxHash: txHash.Hex(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash.Hex(), nil, &ExecutionError{
			Stage:  "confirm",
			TxHash: txHash.Hex(),
			Err:    fmt.Errorf("transaction reverted"),
		}
	}

	realized := d.realizedProfit(receipt)
	if realized == nil {
		d.logger.Warn("profit event absent from receipt", zap.String("tx", txHash.Hex()))
	}
	return txHash.Hex(), realized, nil
}

// buildCallData packs executeArbitrage(asset, amount, params) where params is
// abi.encode(bytes[] legCalls, uint256 minOut). The contract replays the leg
// calls inside the flash-loan callback and enforces minOut before repayment.
func (d *Dispatcher) buildCallData(opp *polytypes.Opportunity) ([]byte, error) {
	legCalls := make([][]byte, 0, len(opp.Legs))
	for i, quote := range opp.Legs {
		if len(quote.CallData) == 0 {
			return nil, fmt.Errorf("leg %d has no execution calldata", i)
		}
		legCalls = append(legCalls, quote.CallData)
	}

	bytesArr, err := abi.NewType("bytes[]", "", nil)
	if err != nil {
		return nil, err
	}
	uint256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}
	params, err := abi.Arguments{{Type: bytesArr}, {Type: uint256}}.Pack(legCalls, opp.MinOutAfterSlippage)
	if err != nil {
		return nil, fmt.Errorf("pack trade params: %w", err)
	}

	return d.abi.Pack("executeArbitrage", opp.Cycle.LoanAsset().Address, opp.InputAmount, params)
}

// waitMined polls for the receipt until the confirmation window closes.
func (d *Dispatcher) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := d.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("not confirmed within %s: %w", d.cfg.ConfirmTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// realizedProfit extracts the profit from the contract's ProfitRealized log,
// or nil when no such log is present.
func (d *Dispatcher) realizedProfit(receipt *types.Receipt) *big.Int {
	event := d.abi.Events["ProfitRealized"]
	for _, lg := range receipt.Logs {
		if lg.Address != d.cfg.Contract || len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}
		unpacked, err := event.Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil || len(unpacked) != 3 {
			d.logger.Warn("malformed profit event", zap.Error(err))
			return nil
		}
		profit, ok := unpacked[2].(*big.Int)
		if !ok {
			return nil
		}
		return profit
	}
	return nil
}
