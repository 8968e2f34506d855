// Package position models the lifecycle of an open round position: PnL
// tracking, high-water mark with ratchet confirmation, the prioritized exit
// policy and the admission gate for new entries.
package position

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/execution"
)

// Entry describes what was bought, alongside the entry fill.
type Entry struct {
	Asset        string
	ConditionID  string
	RoundSlot    int64
	Direction    domain.Direction
	Strategy     string
	InitialDepth float64
}

// Position is a live position. All methods are safe for concurrent use.
type Position struct {
	ID            string
	Asset         string
	ConditionID   string
	RoundSlot     int64
	Direction     domain.Direction
	TokenID       string
	Strategy      string
	EntryPrice    float64
	Shares        float64
	CostUSD       float64
	WasMakerEntry bool
	EntryFeePct   float64
	InitialDepth  float64
	OpenedAt      time.Time

	params ExitParams

	mu            sync.RWMutex
	current       float64
	prev          float64
	observedAt    time.Time
	highWater     float64
	confirmCount  int
	confirmedHigh float64
	stagnantSince time.Time
	closed        bool
}

// Open creates a position from its entry fill. params drives the ratchet and
// stagnant trackers updated by Observe.
func Open(e Entry, fill domain.Fill, params ExitParams) *Position {
	feePct := 0.0
	if !fill.WasMaker {
		feePct = execution.TakerFeePct(fill.Price)
	}
	return &Position{
		ID:            uuid.NewString(),
		Asset:         e.Asset,
		ConditionID:   e.ConditionID,
		RoundSlot:     e.RoundSlot,
		Direction:     e.Direction,
		TokenID:       fill.TokenID,
		Strategy:      e.Strategy,
		EntryPrice:    fill.Price,
		Shares:        fill.Size,
		CostUSD:       fill.Price * fill.Size,
		WasMakerEntry: fill.WasMaker,
		EntryFeePct:   feePct,
		InitialDepth:  e.InitialDepth,
		OpenedAt:      fill.FilledAt,
		params:        params,
		current:       fill.Price,
		prev:          fill.Price,
		observedAt:    fill.FilledAt,
		highWater:     fill.Price,
	}
}

// Observe records the latest price of the position's token. An observation
// not strictly newer than the last one is ignored, so re-reading the same
// book frame never counts as another confirming tick. It reports whether
// the observation was applied.
func (p *Position) Observe(price float64, ts time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !ts.After(p.observedAt) {
		return false
	}
	p.prev = p.current
	p.current = price
	p.observedAt = ts

	tolerance := 1 - p.params.RatchetConfirmTolerancePct/100
	prevHigh := p.highWater
	newHigh := price > prevHigh
	if newHigh {
		p.highWater = price
	}

	// A tick counts toward confirmation while it stays within tolerance of
	// the high-water mark. A new high only restarts the count when it jumps
	// past the tolerance of the previous high, so a steady grind confirms.
	switch {
	case newHigh && prevHigh < price*tolerance:
		p.confirmCount = 1
	case price >= p.highWater*tolerance:
		p.confirmCount++
	default:
		p.confirmCount = 0
	}
	if p.params.RatchetConfirmTicks > 0 && p.confirmCount >= p.params.RatchetConfirmTicks {
		p.confirmedHigh = p.highWater
	}

	pnl := p.pctLocked(price)
	inBand := math.Abs(pnl-p.params.StagnantProfitPct) <= p.params.StagnantBandPct
	switch {
	case !inBand:
		p.stagnantSince = time.Time{}
	case newHigh || p.stagnantSince.IsZero():
		p.stagnantSince = ts
	}
	return true
}

// CurrentPrice returns the last observed price.
func (p *Position) CurrentPrice() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// PnLPct is the unrealized PnL relative to the entry price, in percent.
func (p *Position) PnLPct() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pctLocked(p.current)
}

// HighWaterMark returns the highest observed price.
func (p *Position) HighWaterMark() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.highWater
}

// HighWaterPct is the PnL percent at the high-water mark.
func (p *Position) HighWaterPct() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pctLocked(p.highWater)
}

// ConfirmedHighPct is the PnL percent at the confirmed high. ok is false
// until a high has been confirmed.
func (p *Position) ConfirmedHighPct() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.confirmedHigh == 0 {
		return 0, false
	}
	return p.pctLocked(p.confirmedHigh), true
}

// AdverseMove reports whether the last tick moved against the position or
// the position is under water.
func (p *Position) AdverseMove() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current < p.prev || p.current < p.EntryPrice
}

// StagnantFor returns how long PnL has sat in the stagnant band as of now.
func (p *Position) StagnantFor(now time.Time) (time.Duration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stagnantSince.IsZero() {
		return 0, false
	}
	if now.IsZero() {
		now = p.observedAt
	}
	d := now.Sub(p.stagnantSince)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Closed reports whether Close has been called.
func (p *Position) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Close finalizes the position at exitPrice. Fees are charged on each leg
// that crossed the spread. It succeeds exactly once.
func (p *Position) Close(exitPrice float64, reason domain.ExitReason, exitWasMaker bool, now time.Time) (domain.ClosedPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return domain.ClosedPosition{}, domain.ErrAlreadyClosed
	}
	p.closed = true

	var entryFee, exitFee float64
	if !p.WasMakerEntry {
		entryFee = execution.TakerFee(p.EntryPrice) * p.Shares
	}
	if !exitWasMaker {
		exitFee = execution.TakerFee(exitPrice) * p.Shares
	}
	gross := (exitPrice - p.EntryPrice) * p.Shares
	net := gross - entryFee - exitFee

	var netPct float64
	if p.CostUSD > 0 {
		netPct = net / p.CostUSD * 100
	}

	return domain.ClosedPosition{
		ID:            p.ID,
		Asset:         p.Asset,
		ConditionID:   p.ConditionID,
		RoundSlot:     p.RoundSlot,
		Direction:     p.Direction,
		TokenID:       p.TokenID,
		Strategy:      p.Strategy,
		EntryPrice:    p.EntryPrice,
		ExitPrice:     exitPrice,
		Shares:        p.Shares,
		CostUSD:       p.CostUSD,
		WasMakerEntry: p.WasMakerEntry,
		WasMakerExit:  exitWasMaker,
		EntryFeeUSD:   entryFee,
		ExitFeeUSD:    exitFee,
		GrossPnL:      gross,
		NetPnL:        net,
		NetPnLPct:     netPct,
		HighWaterPct:  p.pctLocked(p.highWater),
		ExitReason:    reason,
		OpenedAt:      p.OpenedAt,
		ClosedAt:      now,
		HoldTimeSec:   now.Sub(p.OpenedAt).Seconds(),
	}, nil
}

func (p *Position) pctLocked(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}
