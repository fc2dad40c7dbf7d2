// Package bot is the composition root: it wires the chain client, pricing
// sources, engine, dispatcher, and operator surfaces into one runnable unit.
package bot

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/polyarb/polyarb/config"
	"github.com/polyarb/polyarb/control"
	"github.com/polyarb/polyarb/engine"
	"github.com/polyarb/polyarb/executor"
	"github.com/polyarb/polyarb/flashloan"
	"github.com/polyarb/polyarb/gas"
	"github.com/polyarb/polyarb/pricing"
	"github.com/polyarb/polyarb/types"
	"github.com/polyarb/polyarb/utils/metrics"
)

// Bot owns the full engine assembly and its HTTP surfaces.
type Bot struct {
	cfg       *config.Config
	scheduler *engine.Scheduler
	hub       *control.Hub
	wsServer  *http.Server
	obsServer *http.Server
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// New builds the bot from validated configuration and secrets.
func New(cfg *config.Config, secure *config.SecureConfig, logger *zap.Logger) (*Bot, error) {
	rpcURL := cfg.RPCEndpoint
	if secure.RPCOverride != "" {
		rpcURL = secure.RPCOverride
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain RPC: %w", err)
	}

	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}
	settlement, err := catalog.Asset(catalog.Settlement)
	if err != nil {
		return nil, err
	}
	native, err := catalog.Asset(catalog.Native)
	if err != nil {
		return nil, err
	}

	aggregator := pricing.NewAggregatorClient(pricing.AggregatorConfig{
		BaseURL:     cfg.AggregatorURL,
		APIKey:      secure.AggregatorAPIKey,
		Taker:       cfg.ContractAddress,
		SlippageBps: cfg.SlippageBps,
		Timeout:     cfg.QuoteTimeout,
		RateLimit:   cfg.AggregatorRateLimit,
		RateBurst:   cfg.AggregatorRateBurst,
	}, logger)

	reserves, err := pricing.NewReserveSource(client, cfg.ContractAddress, cfg.QuoteTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reserve source: %w", err)
	}

	legPricer := pricing.NewLegPricer(map[types.VenueKind]pricing.Source{
		types.VenueAggregator: aggregator,
		types.VenueReserves:   reserves,
	}, cfg.DefaultLegGas)

	evaluator := engine.NewEvaluator(legPricer, engine.EvaluatorConfig{
		Provider:        flashloan.Provider{Name: flashloan.AaveV3.Name, PremiumBps: cfg.PremiumBps},
		SlippageBps:     cfg.SlippageBps,
		BaseOverheadGas: cfg.BaseOverheadGas,
	}, logger)

	templates, err := buildTemplates(catalog)
	if err != nil {
		return nil, err
	}

	gasEstimator := gas.NewEstimator(client, cfg.MaxGasPrice, cfg.QuoteTimeout, logger)
	scanner := engine.NewScanner(evaluator, templates, catalog.TypedVenues(),
		gasEstimator, aggregator, native, settlement, logger)

	dispatcher, err := executor.New(client, secure.PrivateKey, executor.Config{
		ChainID:          new(big.Int).SetUint64(cfg.ChainID),
		Contract:         cfg.ContractAddress,
		GasLimitFallback: cfg.GasLimitFallback,
		ConfirmTimeout:   cfg.ConfirmTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	logger.Info("dispatcher signing address", zap.String("address", dispatcher.From().Hex()))

	hub := control.NewHub(nil, logger)
	engineMetrics := metrics.NewEngine(prometheus.DefaultRegisterer)
	scheduler := engine.NewScheduler(scanner, dispatcher, engine.NewState(), engine.SchedulerConfig{
		Interval:  cfg.ScanInterval,
		MinProfit: cfg.MinProfit,
	}, hub, engineMetrics, logger)
	hub.SetController(scheduler)

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", hub.HandleWS)
	obsMux := http.NewServeMux()
	obsMux.Handle("/metrics", promhttp.Handler())

	return &Bot{
		cfg:       cfg,
		scheduler: scheduler,
		hub:       hub,
		wsServer:  &http.Server{Addr: cfg.WSListenAddr, Handler: wsMux},
		obsServer: &http.Server{Addr: cfg.MetricsListenAddr, Handler: obsMux},
		logger:    logger,
	}, nil
}

// buildTemplates resolves the catalog's cycle declarations into scanner
// templates with concrete search policies.
func buildTemplates(catalog *config.Catalog) ([]engine.CycleTemplate, error) {
	templates := make([]engine.CycleTemplate, 0, len(catalog.Cycles))
	for i, cy := range catalog.Cycles {
		path := make([]types.Asset, 0, len(cy.Path))
		for _, sym := range cy.Path {
			asset, err := catalog.Asset(sym)
			if err != nil {
				return nil, fmt.Errorf("cycle %d: %w", i, err)
			}
			path = append(path, asset)
		}

		var policy engine.SearchPolicy
		if len(cy.Candidates) > 0 {
			amounts, err := cy.CandidateAmounts()
			if err != nil {
				return nil, fmt.Errorf("cycle %d: %w", i, err)
			}
			policy = engine.CandidateSet{Amounts: amounts}
		} else {
			seed, err := cy.SeedAmount()
			if err != nil {
				return nil, fmt.Errorf("cycle %d: %w", i, err)
			}
			policy = engine.ExponentialSweep{Seed: seed, Steps: cy.SweepSteps}
		}

		templates = append(templates, engine.CycleTemplate{
			Path:   path,
			Kind:   types.VenueKind(cy.Kind),
			Policy: policy,
		})
	}
	return templates, nil
}

// Start brings up the operator surfaces and the scan loop. Scanning begins
// immediately; operators can pause it over the control socket.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting arbitrage engine...",
		zap.String("ws_addr", b.cfg.WSListenAddr),
		zap.String("metrics_addr", b.cfg.MetricsListenAddr))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.hub.Run(ctx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.logger.Error("control server error", zap.Error(err))
		}
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.obsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.logger.Error("metrics server error", zap.Error(err))
		}
	}()

	b.scheduler.Start()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.scheduler.Run(ctx)
	}()

	return nil
}

// Stop halts scanning and shuts the HTTP surfaces down.
func (b *Bot) Stop() {
	b.logger.Info("Stopping arbitrage engine...")
	b.scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.wsServer.Shutdown(shutdownCtx); err != nil {
		b.logger.Warn("control server shutdown", zap.Error(err))
	}
	if err := b.obsServer.Shutdown(shutdownCtx); err != nil {
		b.logger.Warn("metrics server shutdown", zap.Error(err))
	}

	b.wg.Wait()
}
