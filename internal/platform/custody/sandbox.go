package custody

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afrifutures/marketd/internal/domain"
)

// Sandbox is an in-memory custody ledger. Unknown users start with
// DefaultBalance. Escrow holds everything transferred in and not yet paid out.
type Sandbox struct {
	mu             sync.Mutex
	balances       map[string]int64
	escrow         int64
	defaultBalance int64
}

var _ domain.AssetTransfer = (*Sandbox)(nil)

// NewSandbox returns a Sandbox that funds new users with defaultBalance.
func NewSandbox(defaultBalance int64) *Sandbox {
	return &Sandbox{balances: make(map[string]int64), defaultBalance: defaultBalance}
}

// Fund sets a user's balance.
func (s *Sandbox) Fund(user string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[user] = amount
}

// Balance returns a user's balance.
func (s *Sandbox) Balance(user string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(user)
}

// Escrow returns the amount currently held in escrow.
func (s *Sandbox) Escrow() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escrow
}

func (s *Sandbox) balanceLocked(user string) int64 {
	b, ok := s.balances[user]
	if !ok {
		return s.defaultBalance
	}
	return b
}

// TransferIn moves amount from user to escrow.
func (s *Sandbox) TransferIn(_ context.Context, user string, amount int64) (domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 {
		return domain.Receipt{}, fmt.Errorf("custody: sandbox: %w: amount %d", domain.ErrTransferFailed, amount)
	}
	bal := s.balanceLocked(user)
	if bal < amount {
		return domain.Receipt{}, fmt.Errorf("custody: sandbox: %w: balance %d < %d", domain.ErrInsufficientFunds, bal, amount)
	}
	s.balances[user] = bal - amount
	s.escrow += amount
	return newReceipt(user, amount, domain.TransferIn), nil
}

// TransferOut moves amount from escrow to user.
func (s *Sandbox) TransferOut(_ context.Context, user string, amount int64) (domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount <= 0 || amount > s.escrow {
		return domain.Receipt{}, fmt.Errorf("custody: sandbox: %w: escrow %d, requested %d", domain.ErrTransferFailed, s.escrow, amount)
	}
	s.escrow -= amount
	s.balances[user] = s.balanceLocked(user) + amount
	return newReceipt(user, amount, domain.TransferOut), nil
}

func newReceipt(user string, amount int64, dir domain.TransferDirection) domain.Receipt {
	return domain.Receipt{
		ID:        uuid.NewString(),
		User:      user,
		Amount:    amount,
		Direction: dir,
		CreatedAt: time.Now().UTC(),
	}
}
