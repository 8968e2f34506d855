package domain

import (
	"context"
	"time"
)

// RoundMarketCache shares the current round's markets with other processes.
type RoundMarketCache interface {
	Put(ctx context.Context, market Market) error
	Get(ctx context.Context, asset string) (Market, error)
	GetByToken(ctx context.Context, tokenID string) (Market, error)
}

// SnapshotCache stores the latest normalized snapshot per token.
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, snap OrderbookSnapshot) error
	GetSnapshot(ctx context.Context, tokenID string) (OrderbookSnapshot, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
	Extend(ctx context.Context, key string, ttl time.Duration) error
}

// StreamMessage is one entry of a decision stream. Key is the decision ID
// the execution client reports the fill under.
type StreamMessage struct {
	ID      string
	Key     string
	Payload []byte
}

// SignalBus broadcasts events and appends decisions to a durable stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream, key string, payload []byte) error
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]StreamMessage, error)
}

// FillWaiter blocks until the external execution client reports a fill for
// a decision.
type FillWaiter interface {
	WaitFill(ctx context.Context, decisionID string, timeout time.Duration) (Fill, error)
}
