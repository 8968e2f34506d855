package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/execution"
	"github.com/alanyoungcy/roundbot/internal/orderbook"
)

const (
	defaultMinEntryPrice    = 0.35
	defaultMaxEntryPrice    = 0.65
	defaultMaxEntryFeePct   = 2.0
	defaultCapitulationMult = 1.5
)

// OBILean buys the side whose book leans to the bid, as long as market
// makers still show conviction and the entry is neither too cheap nor too
// expensive to pay the taker fee on.
//
// Params:
//
//   - "min_entry_price" (float64), default 0.35
//   - "max_entry_price" (float64), default 0.65
//   - "max_entry_fee_pct" (float64), default 2.0
//   - "capitulation_size_mult" (float64), default 1.5; scales the size when
//     market makers have pulled their quotes wide on the chosen side
type OBILean struct {
	cfg    Config
	gauge  SpreadGauge
	logger *slog.Logger
	now    func() time.Time
}

// NewOBILean creates the strategy. gauge may be nil.
func NewOBILean(cfg Config, gauge SpreadGauge, logger *slog.Logger) *OBILean {
	return &OBILean{
		cfg:    cfg,
		gauge:  gauge,
		logger: logger.With(slog.String("strategy", "obi_lean")),
		now:    time.Now,
	}
}

// Name returns the strategy identifier.
func (s *OBILean) Name() string { return "obi_lean" }

// Evaluate picks the bid-leaning side with the larger imbalance.
func (s *OBILean) Evaluate(ctx context.Context, in Input) (domain.EntryIntent, bool) {
	var (
		best       domain.Direction
		bestSnap   domain.OrderbookSnapshot
		bestBucket domain.OBIBucket
		found      bool
	)
	for _, dir := range []domain.Direction{domain.DirectionUp, domain.DirectionDown} {
		snap, ok := in.Book(dir)
		if !ok {
			continue
		}
		bucket, ok := s.qualifies(snap)
		if !ok {
			continue
		}
		if !found || snap.OBI > bestSnap.OBI {
			best, bestSnap, bestBucket, found = dir, snap, bucket, true
		}
	}
	if !found {
		return domain.EntryIntent{}, false
	}

	size := s.cfg.SizeUSD
	capitulated := s.gauge != nil && s.gauge.IsMMCapitulation(bestSnap.TokenID, bestSnap.Spread)
	if capitulated {
		if mult := s.cfg.floatParam("capitulation_size_mult", defaultCapitulationMult); mult > 0 {
			size *= mult
		}
	}

	intent := domain.EntryIntent{
		Source:    s.Name(),
		Asset:     in.Market.Asset,
		Direction: best,
		SizeUSD:   size,
		Reason:    fmt.Sprintf("obi_lean:%s", bestBucket),
		Metadata: map[string]string{
			"obi":             fmt.Sprintf("%.4f", bestSnap.OBI),
			"best_ask":        fmt.Sprintf("%.4f", bestSnap.BestAsk),
			"fee_pct":         fmt.Sprintf("%.4f", execution.TakerFeePct(bestSnap.BestAsk)),
			"mm_capitulation": fmt.Sprintf("%t", capitulated),
		},
		CreatedAt: s.now(),
	}
	s.logger.DebugContext(ctx, "entry intent",
		slog.String("asset", in.Market.Asset),
		slog.String("direction", string(best)),
		slog.Float64("obi", bestSnap.OBI),
		slog.Float64("best_ask", bestSnap.BestAsk),
		slog.Bool("mm_capitulation", capitulated),
		slog.Float64("size_usd", size),
	)
	return intent, true
}

func (s *OBILean) qualifies(snap domain.OrderbookSnapshot) (domain.OBIBucket, bool) {
	bucket := orderbook.CategorizeOBI(snap.OBI)
	if bucket != domain.OBIBidHeavy && bucket != domain.OBIBidLean {
		return bucket, false
	}
	if len(snap.Asks) == 0 || len(snap.Bids) == 0 {
		return bucket, false
	}
	price := snap.BestAsk
	if price < s.cfg.floatParam("min_entry_price", defaultMinEntryPrice) ||
		price > s.cfg.floatParam("max_entry_price", defaultMaxEntryPrice) {
		return bucket, false
	}
	if execution.TakerFeePct(price) > s.cfg.floatParam("max_entry_fee_pct", defaultMaxEntryFeePct) {
		return bucket, false
	}
	if s.gauge != nil && s.gauge.IsMMLowConviction(snap.TokenID, snap.Spread) {
		return bucket, false
	}
	return bucket, true
}
