package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyarb/polyarb/types"
	"github.com/polyarb/polyarb/utils/metrics"
)

// ScanRunner runs one scan cycle and returns its best opportunity.
type ScanRunner interface {
	Scan(ctx context.Context) (*types.Opportunity, error)
}

// Dispatcher submits an accepted opportunity for on-chain execution and
// waits for confirmation. realized is nil when the profit event was absent
// from the receipt.
type Dispatcher interface {
	Dispatch(ctx context.Context, opp *types.Opportunity) (txHash string, realized *big.Int, err error)
}

// Broadcaster is the status/log boundary towards the operator interface.
type Broadcaster interface {
	Log(line string)
	Status(update StatusUpdate)
}

// SchedulerConfig tunes the scan loop.
type SchedulerConfig struct {
	Interval  time.Duration
	MinProfit *big.Int // settlement units an opportunity must clear to dispatch
}

// Scheduler drives scan cycles on a fixed interval and serializes execution:
// at most one dispatch is in flight, and no scan cycle evaluates for
// execution while a previous dispatch is unconfirmed.
type Scheduler struct {
	scanner     ScanRunner
	dispatcher  Dispatcher
	state       *State
	cfg         SchedulerConfig
	broadcaster Broadcaster
	metrics     *metrics.Engine
	logger      *zap.Logger

	// dispatchMu is held across the whole scan-and-dispatch sequence.
	dispatchMu sync.Mutex
}

// NewScheduler creates the engine scheduler. broadcaster may be nil.
func NewScheduler(scanner ScanRunner, dispatcher Dispatcher, state *State, cfg SchedulerConfig, broadcaster Broadcaster, m *metrics.Engine, logger *zap.Logger) *Scheduler {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MinProfit == nil {
		cfg.MinProfit = new(big.Int)
	}
	if m == nil {
		m = metrics.NewEngine(nil)
	}
	return &Scheduler{
		scanner:     scanner,
		dispatcher:  dispatcher,
		state:       state,
		cfg:         cfg,
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logger,
	}
}

// Start enables scanning. Safe to call repeatedly.
func (s *Scheduler) Start() {
	if s.state.SetRunning(true) {
		s.logf("Bot started.")
	}
	s.broadcastStatus()
}

// Stop disables scanning. An in-flight dispatch runs to completion: its
// transaction is already irreversible once submitted.
func (s *Scheduler) Stop() {
	if s.state.SetRunning(false) {
		s.logf("Bot stopped.")
	}
	s.broadcastStatus()
}

// Run drives scan cycles until the context is cancelled. Every per-cycle
// failure is logged and swallowed; the loop always reaches the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single scan cycle and, if it yields an opportunity
// above the profit floor, dispatches it and waits for confirmation. The
// dispatch mutex is held for the whole sequence; an overlapping trigger is
// skipped rather than queued.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if !s.state.Running() {
		return
	}
	if !s.dispatchMu.TryLock() {
		s.logger.Info("previous dispatch still unconfirmed, skipping scan cycle")
		s.metrics.ScansSkipped.Inc()
		return
	}
	defer s.dispatchMu.Unlock()

	start := time.Now()
	s.state.SetStatus(StatusScanning)
	s.broadcastStatus()
	s.metrics.ScanCycles.Inc()

	best, err := s.scanner.Scan(ctx)
	s.metrics.ScanDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		s.logf("Scan cycle skipped: %v", err)
	case best == nil:
		s.logf("No profitable opportunity found.")
	default:
		s.metrics.Opportunities.Inc()
		s.logf("Best: %s amount=%s net=%s (gross=%s premium=%s gas=%s)",
			best.Cycle, best.InputAmount, best.NetProfit,
			best.GrossProfit, best.LoanPremium, best.GasCost)
		if best.NetProfit.Cmp(s.cfg.MinProfit) > 0 {
			s.execute(ctx, best)
		} else {
			s.logf("Rejected: net profit below threshold %s.", s.cfg.MinProfit)
		}
	}

	s.state.SetStatus(StatusIdle)
	s.broadcastStatus()
}

func (s *Scheduler) execute(ctx context.Context, opp *types.Opportunity) {
	s.state.SetStatus(StatusExecuting)
	s.broadcastStatus()

	txHash, realized, err := s.dispatcher.Dispatch(ctx, opp)
	if err != nil {
		s.metrics.ObserveExecution(false)
		s.logf("Execution failed: %v", err)
		return
	}
	if realized == nil {
		// Profit event absent but the trade succeeded; account the
		// expected profit instead.
		realized = opp.NetProfit
	}

	s.state.RecordExecution(opp, txHash, realized)
	s.metrics.ObserveExecution(true)
	s.metrics.AddRealizedProfit(realized)
	s.logf("Trade confirmed %s, net profit %s added.", txHash, realized)
}

// logf logs through zap and mirrors the line to the operator interface.
func (s *Scheduler) logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	s.logger.Info(line)
	if s.broadcaster != nil {
		s.broadcaster.Log(line)
	}
}

func (s *Scheduler) broadcastStatus() {
	if s.broadcaster != nil {
		s.broadcaster.Status(s.state.Snapshot())
	}
}
