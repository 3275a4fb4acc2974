package domain

import (
	"context"
	"time"
)

// PriceQuote is a single oracle observation. Price is in minor units and
// Confidence is 0..100.
type PriceQuote struct {
	Commodity  Commodity
	Price      int64
	Confidence int
	Timestamp  time.Time
	Source     string
}

// PriceOracle supplies the resolving price for a commodity.
type PriceOracle interface {
	GetPrice(ctx context.Context, commodity Commodity) (PriceQuote, error)
}

// TransferDirection distinguishes deposits from payouts.
type TransferDirection string

const (
	TransferIn  TransferDirection = "in"
	TransferOut TransferDirection = "out"
)

// Receipt confirms a completed asset movement.
type Receipt struct {
	ID        string
	User      string
	Amount    int64
	Direction TransferDirection
	CreatedAt time.Time
}

// AssetTransfer moves the staking asset between users and the market escrow.
// Failures return ErrInsufficientFunds or ErrTransferFailed.
type AssetTransfer interface {
	TransferIn(ctx context.Context, user string, amount int64) (Receipt, error)
	TransferOut(ctx context.Context, user string, amount int64) (Receipt, error)
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches a transfer idempotency key to ctx. AssetTransfer
// implementations that talk to a remote service send it so that a retried
// transfer is applied at most once.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the key set by WithIdempotencyKey, if any.
func IdempotencyKey(ctx context.Context) (string, bool) {
	k, ok := ctx.Value(idempotencyKey{}).(string)
	return k, ok && k != ""
}
