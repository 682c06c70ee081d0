// Package wallet implements the live event signal consumed by the condition
// engine. The engine never detects wallet events itself; this package owns
// the detection bookkeeping: incoming-transaction counters against the
// ledger, a connected-wallet registry fed by the extension handshake layer,
// and balance-change tracking across successive readings.
package wallet

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"satwallet/internal/types"
)

// balanceEpsilon guards float comparison of BTC balances. Anything below a
// hundredth of a satoshi is noise.
const balanceEpsilon = 1e-10

// SignalRepo is the ledger access the signal needs from the wallet
// repository.
type SignalRepo interface {
	CountIncomingSince(ctx context.Context, since time.Time) (int, error)
	TotalBalance(ctx context.Context) (float64, error)
}

// Signal answers the engine's event-condition queries. Safe for concurrent
// use; each query is a bounded repository lookup, never a blocking wait.
type Signal struct {
	mu sync.Mutex

	repo  SignalRepo
	clock types.Clock

	lastTxCheck time.Time
	lastBalance float64
	balanceSeen bool
	connected   map[string]time.Time
}

// NewSignal creates a Signal. The "since last check" window for transaction
// detection starts at construction time, so transactions predating process
// start never fire.
func NewSignal(repo SignalRepo, clock types.Clock) *Signal {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Signal{
		repo:        repo,
		clock:       clock,
		lastTxCheck: clock.Now(),
		connected:   make(map[string]time.Time),
	}
}

// Connect records a wallet as connected. Called by the extension handshake
// layer, which is external to the engine.
func (s *Signal) Connect(walletID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected[walletID] = s.clock.Now()
}

// Disconnect removes a wallet from the connected registry.
func (s *Signal) Disconnect(walletID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connected, walletID)
}

// TransactionReceived reports whether any incoming transaction has been
// recorded since the previous call. The check window advances on every call
// regardless of outcome.
func (s *Signal) TransactionReceived(ctx context.Context) (bool, error) {
	s.mu.Lock()
	since := s.lastTxCheck
	now := s.clock.Now()
	s.lastTxCheck = now
	s.mu.Unlock()

	count, err := s.repo.CountIncomingSince(ctx, since)
	if err != nil {
		return false, fmt.Errorf("counting incoming transactions: %w", err)
	}
	return count > 0, nil
}

// WalletConnected reports whether any wallet is currently connected.
func (s *Signal) WalletConnected(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connected) > 0, nil
}

// BalanceChanged reports whether the total balance differs from the reading
// taken on the previous call. The first call establishes the baseline and
// reports false.
func (s *Signal) BalanceChanged(ctx context.Context) (bool, error) {
	total, err := s.repo.TotalBalance(ctx)
	if err != nil {
		return false, fmt.Errorf("reading total balance: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.balanceSeen {
		s.balanceSeen = true
		s.lastBalance = total
		return false, nil
	}

	changed := math.Abs(total-s.lastBalance) > balanceEpsilon
	s.lastBalance = total
	return changed, nil
}
