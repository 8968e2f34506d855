package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/position"
)

// defaultHistoryWindow is the summary lookback when none is given.
const defaultHistoryWindow = 24 * time.Hour

// PositionSource lists the open positions.
type PositionSource interface {
	List() []*position.Position
}

// HistorySource aggregates closed positions.
type HistorySource interface {
	Summary(ctx context.Context, since time.Time) (domain.HistorySummary, error)
}

// PositionHandler serves open positions and the closed-position summary.
type PositionHandler struct {
	positions PositionSource
	history   HistorySource
	logger    *slog.Logger
	now       func() time.Time
}

// NewPositionHandler creates a PositionHandler. history may be nil.
func NewPositionHandler(positions PositionSource, history HistorySource, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		history:   history,
		logger:    logHandler(logger, "positions"),
		now:       time.Now,
	}
}

// openPosition is the JSON view of a live position.
type openPosition struct {
	ID            string           `json:"id"`
	Asset         string           `json:"asset"`
	Direction     domain.Direction `json:"direction"`
	TokenID       string           `json:"token_id"`
	Strategy      string           `json:"strategy"`
	RoundSlot     int64            `json:"round_slot"`
	EntryPrice    float64          `json:"entry_price"`
	CurrentPrice  float64          `json:"current_price"`
	Shares        float64          `json:"shares"`
	PnLPct        float64          `json:"pnl_pct"`
	HighWaterPct  float64          `json:"high_water_pct"`
	WasMakerEntry bool             `json:"was_maker_entry"`
	OpenedAt      time.Time        `json:"opened_at"`
}

type listPositionsResponse struct {
	Positions []openPosition `json:"positions"`
}

// ListPositions returns the open positions, oldest first.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	list := h.positions.List()
	out := make([]openPosition, 0, len(list))
	for _, p := range list {
		out = append(out, openPosition{
			ID:            p.ID,
			Asset:         p.Asset,
			Direction:     p.Direction,
			TokenID:       p.TokenID,
			Strategy:      p.Strategy,
			RoundSlot:     p.RoundSlot,
			EntryPrice:    p.EntryPrice,
			CurrentPrice:  p.CurrentPrice(),
			Shares:        p.Shares,
			PnLPct:        p.PnLPct(),
			HighWaterPct:  p.HighWaterPct(),
			WasMakerEntry: p.WasMakerEntry,
			OpenedAt:      p.OpenedAt,
		})
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: out})
}

// GetSummary aggregates closed positions since the given time.
// GET /api/positions/summary?since=24h
func (h *PositionHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "position history not configured")
		return
	}
	since, ok := parseSince(r, h.now(), defaultHistoryWindow)
	if !ok {
		writeError(w, http.StatusBadRequest, "since must be a duration or an RFC 3339 time")
		return
	}
	sum, err := h.history.Summary(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: history summary failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to summarize history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":   since.UTC().Format(time.RFC3339),
		"summary": sum,
	})
}
