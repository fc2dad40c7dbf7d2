package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/polyarb/polyarb/types"
)

// AggregatorConfig configures the HTTP price aggregator client.
type AggregatorConfig struct {
	BaseURL     string
	APIKey      string
	Taker       common.Address // taker address sent with every quote request
	SlippageBps int64
	Timeout     time.Duration
	RateLimit   float64 // requests per second
	RateBurst   int
}

// AggregatorClient implements Source against a 0x-style swap quote API.
// Quotes come back already adjusted for the trade's price impact.
type AggregatorClient struct {
	cfg     AggregatorConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewAggregatorClient creates an aggregator price source.
func NewAggregatorClient(cfg AggregatorConfig, logger *zap.Logger) *AggregatorClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 10
	}
	return &AggregatorClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:  logger,
	}
}

// quoteResponse is the aggregator's wire shape. Error payloads reuse the same
// body with Reason/ValidationErrors set.
type quoteResponse struct {
	BuyAmount    string `json:"buyAmount"`
	EstimatedGas string `json:"estimatedGas"`
	Gas          string `json:"gas"`
	Data         string `json:"data"`
	To           string `json:"to"`

	Reason           string `json:"reason"`
	ValidationErrors []struct {
		Reason string `json:"reason"`
	} `json:"validationErrors"`
}

// Quote requests a sell quote restricted to the leg's venue source. On any
// transport failure or error payload it logs the reason and returns
// ErrUnavailable rather than surfacing a hard error.
func (c *AggregatorClient) Quote(ctx context.Context, leg types.Leg, sellAmount *big.Int) (*types.Quote, error) {
	params := url.Values{}
	params.Set("sellToken", leg.SellAsset.Address.Hex())
	params.Set("buyToken", leg.BuyAsset.Address.Hex())
	params.Set("sellAmount", sellAmount.String())
	params.Set("takerAddress", c.cfg.Taker.Hex())
	params.Set("slippagePercentage", strconv.FormatFloat(float64(c.cfg.SlippageBps)/10000, 'f', -1, 64))
	if leg.Venue.Source != "" {
		params.Set("includedSources", leg.Venue.Source)
	}

	resp, err := c.get(ctx, params)
	if err != nil {
		c.logger.Warn("aggregator quote failed",
			zap.String("sell", leg.SellAsset.Symbol),
			zap.String("buy", leg.BuyAsset.Symbol),
			zap.String("venue", leg.Venue.Name),
			zap.Error(err))
		return nil, fmt.Errorf("quote %s->%s on %s: %w", leg.SellAsset.Symbol, leg.BuyAsset.Symbol, leg.Venue.Name, ErrUnavailable)
	}

	buyAmount, ok := new(big.Int).SetString(resp.BuyAmount, 10)
	if !ok || buyAmount.Sign() <= 0 {
		return nil, fmt.Errorf("quote %s->%s: bad buyAmount %q: %w", leg.SellAsset.Symbol, leg.BuyAsset.Symbol, resp.BuyAmount, ErrUnavailable)
	}

	callData, err := hexutil.Decode(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("quote %s->%s: bad calldata: %w", leg.SellAsset.Symbol, leg.BuyAsset.Symbol, ErrUnavailable)
	}

	return &types.Quote{
		SellAsset:  leg.SellAsset.Address,
		BuyAsset:   leg.BuyAsset.Address,
		SellAmount: new(big.Int).Set(sellAmount),
		BuyAmount:  buyAmount,
		GasUnits:   resp.gasUnits(),
		CallData:   callData,
		VenueName:  leg.Venue.Name,
	}, nil
}

// NativeRate probes the settlement value of one whole native token (1e18
// wei) by selling it through the aggregator without a venue restriction.
// Used once per scan cycle to build the MarketSnapshot.
func (c *AggregatorClient) NativeRate(ctx context.Context, native, settlement types.Asset) (*big.Int, error) {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	params := url.Values{}
	params.Set("sellToken", native.Address.Hex())
	params.Set("buyToken", settlement.Address.Hex())
	params.Set("sellAmount", one.String())
	params.Set("takerAddress", c.cfg.Taker.Hex())

	resp, err := c.get(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("native rate %s->%s: %w", native.Symbol, settlement.Symbol, err)
	}
	rate, ok := new(big.Int).SetString(resp.BuyAmount, 10)
	if !ok || rate.Sign() <= 0 {
		return nil, fmt.Errorf("native rate %s->%s: bad buyAmount %q", native.Symbol, settlement.Symbol, resp.BuyAmount)
	}
	return rate, nil
}

func (c *AggregatorClient) get(ctx context.Context, params url.Values) (*quoteResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/swap/v1/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("0x-api-key", c.cfg.APIKey)
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", httpResp.StatusCode, resp.reason())
	}
	return &resp, nil
}

func (r *quoteResponse) reason() string {
	if len(r.ValidationErrors) > 0 && r.ValidationErrors[0].Reason != "" {
		return r.ValidationErrors[0].Reason
	}
	if r.Reason != "" {
		return r.Reason
	}
	return "unknown error"
}

// gasUnits parses whichever gas field the aggregator populated, 0 if none.
func (r *quoteResponse) gasUnits() uint64 {
	for _, raw := range []string{r.EstimatedGas, r.Gas} {
		if raw == "" {
			continue
		}
		if g, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return g
		}
	}
	return 0
}
