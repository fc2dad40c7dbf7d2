package engine

import (
	"math/big"
	"sync"

	"github.com/polyarb/polyarb/types"
)

// Status is the human-readable state label broadcast to operators.
type Status string

const (
	StatusIdle      Status = "Idle"
	StatusScanning  Status = "Scanning"
	StatusExecuting Status = "Executing Trade"
)

// StatusUpdate is the snapshot pushed over the status-broadcast boundary.
type StatusUpdate struct {
	Running             bool
	Status              Status
	CumulativeNetProfit *big.Int
	LastTxHash          string
}

// State is the engine's process-wide mutable state. It is owned by the
// scheduler; the dispatcher and the status boundary only see it through
// methods, never as an ambient global.
type State struct {
	mu                  sync.RWMutex
	running             bool
	status              Status
	lastOpportunity     *types.Opportunity
	cumulativeNetProfit *big.Int
	lastTxHash          string
}

// NewState creates an idle, non-running state.
func NewState() *State {
	return &State{
		status:              StatusIdle,
		cumulativeNetProfit: new(big.Int),
	}
}

// SetRunning flips the running flag and returns whether it changed.
func (s *State) SetRunning(running bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == running {
		return false
	}
	s.running = running
	if !running {
		s.status = StatusIdle
	}
	return true
}

// Running reports whether scanning is enabled.
func (s *State) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SetStatus updates the state label.
func (s *State) SetStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// RecordExecution accounts a confirmed trade.
func (s *State) RecordExecution(opp *types.Opportunity, txHash string, realized *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOpportunity = opp
	s.lastTxHash = txHash
	s.cumulativeNetProfit.Add(s.cumulativeNetProfit, realized)
}

// LastOpportunity returns the most recently executed opportunity.
func (s *State) LastOpportunity() *types.Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastOpportunity
}

// Snapshot returns a consistent copy for status broadcasting.
func (s *State) Snapshot() StatusUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatusUpdate{
		Running:             s.running,
		Status:              s.status,
		CumulativeNetProfit: new(big.Int).Set(s.cumulativeNetProfit),
		LastTxHash:          s.lastTxHash,
	}
}
