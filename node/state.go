package node

import (
	"sync"
	"time"
)

// NodeState is the coordinator's sync phase, advanced strictly forward
// except for the one regression rule: an inv announcing a block the
// client has no header for means its header chain has fallen behind and
// every later phase's progress is provisional until headers catch up.
type NodeState int

const (
	StateBehind NodeState = iota
	StateHeadersSynced
	StateFilterHeadersSynced
	StateFiltersSynced
	StateTransactionsSynced
)

func (s NodeState) String() string {
	switch s {
	case StateBehind:
		return "Behind"
	case StateHeadersSynced:
		return "HeadersSynced"
	case StateFilterHeadersSynced:
		return "FilterHeadersSynced"
	case StateFiltersSynced:
		return "FiltersSynced"
	case StateTransactionsSynced:
		return "TransactionsSynced"
	default:
		return "Unknown"
	}
}

// regressTo reports the state an announcement of unknown inventory should
// force the coordinator back down to: always StateBehind, since every
// later phase's correctness depends on having the full header chain.
func regressTo(current NodeState) NodeState {
	if current == StateBehind {
		return current
	}
	return StateBehind
}

// LastBlockMonitor detects a stalled tip: if no new best-chain tip has
// been observed for StaleAfter, the coordinator should suspect its peers
// have gone quiet (or it's been partitioned) and send a fresh getheaders
// request to one connected peer.
type LastBlockMonitor struct {
	mu         sync.Mutex
	lastTip    time.Time
	staleAfter time.Duration
}

func NewLastBlockMonitor(staleAfter time.Duration) *LastBlockMonitor {
	return &LastBlockMonitor{lastTip: time.Now(), staleAfter: staleAfter}
}

// Tip records that the best-chain tip advanced just now.
func (m *LastBlockMonitor) Tip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTip = time.Now()
}

// IsStale reports whether the tip hasn't advanced in staleAfter.
func (m *LastBlockMonitor) IsStale(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleAfter <= 0 {
		return false
	}
	return now.Sub(m.lastTip) > m.staleAfter
}
