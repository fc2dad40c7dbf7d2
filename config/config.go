package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type Config struct {
	// Chain and network settings
	ChainID         uint64         `json:"chain_id"`
	RPCEndpoint     string         `json:"rpc_endpoint"`
	ContractAddress common.Address `json:"contract_address"`

	// Price aggregator
	AggregatorURL       string        `json:"aggregator_url"`
	AggregatorRateLimit float64       `json:"aggregator_rate_limit"` // requests per second
	AggregatorRateBurst int           `json:"aggregator_rate_burst"`
	QuoteTimeout        time.Duration `json:"quote_timeout"`

	// Scan loop
	ScanInterval time.Duration `json:"scan_interval"`
	MinProfit    *big.Int      `json:"min_profit"`    // settlement smallest units
	MaxGasPrice  *big.Int      `json:"max_gas_price"` // wei

	// Cost model
	SlippageBps     int64  `json:"slippage_bps"`
	PremiumBps      int64  `json:"premium_bps"`
	BaseOverheadGas uint64 `json:"base_overhead_gas"` // flash loan + contract overhead
	DefaultLegGas   uint64 `json:"default_leg_gas"`   // used when a quote has no estimate

	// Execution
	GasLimitFallback uint64        `json:"gas_limit_fallback"`
	ConfirmTimeout   time.Duration `json:"confirm_timeout"`

	// Operator surfaces
	WSListenAddr      string `json:"ws_listen_addr"`
	MetricsListenAddr string `json:"metrics_listen_addr"`

	// Venue and cycle catalog, empty means built-in Polygon defaults
	CatalogFile string `json:"catalog_file"`

	// Internal components
	Logger *zap.Logger `json:"-"`
}

type SecureConfig struct {
	PrivateKey       string
	AggregatorAPIKey string
	RPCOverride      string
}

func (c *Config) ValidateConfig() error {
	var errors []string

	if c.ChainID == 0 {
		errors = append(errors, "chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		errors = append(errors, "rpc_endpoint must be specified")
	}
	if c.ContractAddress == (common.Address{}) {
		errors = append(errors, "contract_address must be specified")
	}
	if c.AggregatorURL == "" {
		errors = append(errors, "aggregator_url must be specified")
	}
	if c.ScanInterval <= 0 {
		errors = append(errors, "scan_interval must be positive")
	}
	if c.MinProfit == nil || c.MinProfit.Sign() < 0 {
		errors = append(errors, "min_profit must be zero or positive")
	}
	if c.MaxGasPrice == nil || c.MaxGasPrice.Sign() <= 0 {
		errors = append(errors, "max_gas_price must be positive")
	}
	if c.SlippageBps < 0 || c.SlippageBps >= 10000 {
		errors = append(errors, "slippage_bps must be in [0, 10000)")
	}
	if c.PremiumBps < 0 || c.PremiumBps >= 10000 {
		errors = append(errors, "premium_bps must be in [0, 10000)")
	}
	if c.BaseOverheadGas == 0 {
		errors = append(errors, "base_overhead_gas must be positive")
	}
	if c.GasLimitFallback == 0 {
		errors = append(errors, "gas_limit_fallback must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".polyarb.json")
	}

	file, err := os.Open(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	config := DefaultConfig()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		cfgFile = filepath.Join(home, ".polyarb.json")
	}

	file, err := os.Create(cfgFile)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "    ")
	return encoder.Encode(cfg)
}

// DefaultConfig returns the Polygon mainnet defaults. RPC endpoint and
// contract address still have to be supplied.
func DefaultConfig() *Config {
	return &Config{
		ChainID:             137,
		AggregatorURL:       "https://polygon.api.0x.org",
		AggregatorRateLimit: 2,
		AggregatorRateBurst: 4,
		QuoteTimeout:        10 * time.Second,

		ScanInterval: 5 * time.Second,
		MinProfit:    big.NewInt(1_000_000),       // 1 USDC
		MaxGasPrice:  big.NewInt(500_000_000_000), // 500 Gwei

		SlippageBps:     50,
		PremiumBps:      9,
		BaseOverheadGas: 350_000,
		DefaultLegGas:   152_000,

		GasLimitFallback: 1_500_000,
		ConfirmTimeout:   2 * time.Minute,

		WSListenAddr:      ":8080",
		MetricsListenAddr: ":9090",
	}
}
