package execution

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/orderbook"
)

// defaultMakerRest is how long a pure maker order rests when the book
// imbalance would otherwise allow no wait at all.
const defaultMakerRest = 2 * time.Second

// Config holds the execution preferences.
type Config struct {
	EntryMode            domain.ExecutionMode
	ExitMode             domain.ExecutionMode
	TakerBufferCents     float64
	MakerExitBufferCents float64
	TickSize             float64
	MakerExitsForTpOnly  bool
}

// DefaultConfig returns the execution defaults.
func DefaultConfig() Config {
	return Config{
		EntryMode:            domain.ExecMakerThenTaker,
		ExitMode:             domain.ExecMakerThenTaker,
		TakerBufferCents:     1,
		MakerExitBufferCents: 1,
		TickSize:             0.01,
		MakerExitsForTpOnly:  true,
	}
}

// MakerTimeout returns how long a maker order should rest before escalating,
// given the imbalance of the book it rests on. A buyer waits longest when
// sellers dominate and not at all when buyers already crowd the bid; a seller
// mirrors that.
func MakerTimeout(side domain.OrderSide, bucket domain.OBIBucket) time.Duration {
	if side == domain.OrderSideSell {
		switch bucket {
		case domain.OBIBidHeavy:
			return 4000 * time.Millisecond
		case domain.OBIBidLean, domain.OBIBalanced:
			return 2000 * time.Millisecond
		case domain.OBIAskLean:
			return 1000 * time.Millisecond
		default:
			return 0
		}
	}
	switch bucket {
	case domain.OBIAskHeavy:
		return 4000 * time.Millisecond
	case domain.OBIAskLean, domain.OBIBalanced:
		return 2000 * time.Millisecond
	case domain.OBIBidLean:
		return 1000 * time.Millisecond
	default:
		return 0
	}
}

// ExitRequest identifies the position an exit decision is for.
type ExitRequest struct {
	PositionID  string
	Asset       string
	ConditionID string
	TokenID     string
	Shares      float64
}

// Policy turns entry and exit intents into priced order decisions.
type Policy struct {
	cfg  Config
	tick decimal.Decimal
	now  func() time.Time
}

// NewPolicy creates a Policy. A zero tick size falls back to one cent.
func NewPolicy(cfg Config) *Policy {
	if cfg.TickSize <= 0 {
		cfg.TickSize = 0.01
	}
	return &Policy{
		cfg:  cfg,
		tick: decimal.NewFromFloat(cfg.TickSize),
		now:  time.Now,
	}
}

// Config returns the policy's configuration.
func (p *Policy) Config() Config { return p.cfg }

// Entry builds the buy decision for dir on market m.
func (p *Policy) Entry(m domain.Market, dir domain.Direction, snap domain.OrderbookSnapshot, shares float64) domain.OrderDecision {
	bucket := orderbook.CategorizeOBI(snap.OBI)
	d := p.decide(domain.OrderSideBuy, p.cfg.EntryMode, bucket, snap)
	d.Asset = m.Asset
	d.ConditionID = m.ConditionID
	d.TokenID = m.TokenID(dir)
	d.Size = shares
	d.Reason = fmt.Sprintf("entry:%s:%s", dir, bucket)
	return d
}

// Exit builds the sell decision that closes req for reason.
func (p *Policy) Exit(req ExitRequest, reason domain.ExitReason, snap domain.OrderbookSnapshot) domain.OrderDecision {
	bucket := orderbook.CategorizeOBI(snap.OBI)
	d := p.decide(domain.OrderSideSell, p.ExitMode(reason), bucket, snap)
	d.PositionID = req.PositionID
	d.Asset = req.Asset
	d.ConditionID = req.ConditionID
	d.TokenID = req.TokenID
	d.Size = req.Shares
	d.Reason = reason.String()
	return d
}

// ExitMode resolves the execution mode for an exit. Deadline and loss exits
// always cross; with MakerExitsForTpOnly only take_profit may rest.
func (p *Policy) ExitMode(reason domain.ExitReason) domain.ExecutionMode {
	if reason.ForcesTaker() {
		return domain.ExecTaker
	}
	if p.cfg.MakerExitsForTpOnly && reason != domain.ExitTakeProfit {
		return domain.ExecTaker
	}
	return p.cfg.ExitMode
}

func (p *Policy) decide(side domain.OrderSide, mode domain.ExecutionMode, bucket domain.OBIBucket, snap domain.OrderbookSnapshot) domain.OrderDecision {
	d := domain.OrderDecision{
		ID:        uuid.NewString(),
		Side:      side,
		Mode:      mode,
		CreatedAt: p.now(),
	}
	taker := p.TakerPrice(side, snap)

	switch mode {
	case domain.ExecMakerThenTaker:
		timeout := MakerTimeout(side, bucket)
		if timeout == 0 {
			d.Mode = domain.ExecTaker
			d.Price = taker
			return d
		}
		d.Price = p.MakerPrice(side, snap)
		d.TakerPrice = taker
		d.MakerTimeout = timeout
	case domain.ExecMaker:
		d.Price = p.MakerPrice(side, snap)
		d.MakerTimeout = MakerTimeout(side, bucket)
		if d.MakerTimeout == 0 {
			d.MakerTimeout = defaultMakerRest
		}
	default:
		d.Price = taker
	}
	return d
}

// TakerPrice is the marketable limit for side: best ask plus the buffer for
// a buy, best bid minus the buffer for a sell.
func (p *Policy) TakerPrice(side domain.OrderSide, snap domain.OrderbookSnapshot) float64 {
	buf := decimal.NewFromFloat(p.cfg.TakerBufferCents).Div(decimal.NewFromInt(100))
	if side == domain.OrderSideBuy {
		return p.clamp(p.ceilTick(decimal.NewFromFloat(snap.BestAsk).Add(buf)))
	}
	return p.clamp(p.floorTick(decimal.NewFromFloat(snap.BestBid).Sub(buf)))
}

// MakerPrice is the post-only limit for side. A buy improves the bid by one
// tick without reaching the ask. A sell sits below the ask by the maker exit
// buffer without touching the bid.
func (p *Policy) MakerPrice(side domain.OrderSide, snap domain.OrderbookSnapshot) float64 {
	bid := decimal.NewFromFloat(snap.BestBid)
	ask := decimal.NewFromFloat(snap.BestAsk)

	if side == domain.OrderSideBuy {
		px := p.floorTick(bid.Add(p.tick))
		if px.GreaterThanOrEqual(ask) {
			px = p.floorTick(ask.Sub(p.tick))
		}
		return p.clamp(px)
	}

	buf := decimal.NewFromFloat(p.cfg.MakerExitBufferCents).Div(decimal.NewFromInt(100))
	px := p.ceilTick(ask.Sub(buf))
	if px.LessThanOrEqual(bid) {
		px = p.ceilTick(bid.Add(p.tick))
	}
	return p.clamp(px)
}

func (p *Policy) ceilTick(v decimal.Decimal) decimal.Decimal {
	return v.Div(p.tick).Ceil().Mul(p.tick)
}

func (p *Policy) floorTick(v decimal.Decimal) decimal.Decimal {
	return v.Div(p.tick).Floor().Mul(p.tick)
}

// clamp keeps a price inside [tick, 1-tick].
func (p *Policy) clamp(v decimal.Decimal) float64 {
	lo := p.tick
	hi := decimal.NewFromInt(1).Sub(p.tick)
	switch {
	case v.LessThan(lo):
		v = lo
	case v.GreaterThan(hi):
		v = hi
	}
	f, _ := v.Float64()
	return f
}
