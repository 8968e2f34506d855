// Package executor turns order decisions into fills. The core never signs
// or submits orders itself: the paper executor simulates fills against the
// live book and the stream executor hands decisions to an external
// execution client over Redis.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// Executor executes one decision and reports how it filled.
type Executor interface {
	Execute(ctx context.Context, d domain.OrderDecision) (domain.Fill, error)
}

// ErrDuplicate is returned by the dedup guard for a repeated decision.
var ErrDuplicate = errors.New("executor: duplicate decision")

// validate rejects decisions the execution layer cannot act on.
func validate(d domain.OrderDecision) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("executor: decision without id")
	case d.TokenID == "":
		return fmt.Errorf("executor: decision %s without token", d.ID)
	case d.Size <= 0:
		return fmt.Errorf("executor: decision %s with size %v", d.ID, d.Size)
	case d.Price <= 0 || d.Price >= 1:
		return fmt.Errorf("executor: decision %s with price %v", d.ID, d.Price)
	case !d.Mode.Valid():
		return fmt.Errorf("executor: decision %s with mode %q", d.ID, d.Mode)
	}
	return nil
}

// wouldCross reports whether a post-only order at d.Price would take
// liquidity from snap.
func wouldCross(d domain.OrderDecision, snap domain.OrderbookSnapshot) bool {
	if d.Side == domain.OrderSideBuy {
		return len(snap.Asks) > 0 && d.Price >= snap.BestAsk
	}
	return len(snap.Bids) > 0 && d.Price <= snap.BestBid
}

// escalate converts a maker_then_taker decision into its taker leg.
func escalate(d domain.OrderDecision) domain.OrderDecision {
	t := d
	t.ID = d.ID + "-taker"
	t.Mode = domain.ExecTaker
	if d.TakerPrice > 0 {
		t.Price = d.TakerPrice
	}
	t.MakerTimeout = 0
	return t
}
