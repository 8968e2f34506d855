package domain

import (
	"context"
	"time"
)

// ClosedPositionStore persists the history of closed positions.
type ClosedPositionStore interface {
	Insert(ctx context.Context, p ClosedPosition) error
	ListBefore(ctx context.Context, before time.Time) ([]ClosedPosition, error)
	ListRange(ctx context.Context, from, to time.Time) ([]ClosedPosition, error)
	Summary(ctx context.Context, since time.Time) (HistorySummary, error)
}
