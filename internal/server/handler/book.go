package handler

import (
	"net/http"

	"github.com/alanyoungcy/roundbot/internal/engine"
)

// ViewSource returns the analytics readout of the current tokens.
type ViewSource interface {
	Views() []engine.TokenView
}

// BookHandler serves the orderbook analytics readout.
type BookHandler struct {
	views ViewSource
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(views ViewSource) *BookHandler {
	return &BookHandler{views: views}
}

type bookView struct {
	Asset          string   `json:"asset"`
	Direction      string   `json:"direction"`
	TokenID        string   `json:"token_id"`
	BestBid        float64  `json:"best_bid"`
	BestAsk        float64  `json:"best_ask"`
	OBI            float64  `json:"obi"`
	Bucket         string   `json:"bucket"`
	SpreadRatio    *float64 `json:"spread_ratio"`
	DepthChangePct *float64 `json:"depth_change_pct"`
	BidStaleSec    *float64 `json:"bid_stale_sec"`
}

// known returns &v when ok so unknown statistics serialize as null.
func known(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

// ListBooks returns the readout of every token with a snapshot.
// GET /api/books
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	views := h.views.Views()
	out := make([]bookView, 0, len(views))
	for _, v := range views {
		out = append(out, bookView{
			Asset:          v.Asset,
			Direction:      string(v.Direction),
			TokenID:        v.TokenID,
			BestBid:        v.BestBid,
			BestAsk:        v.BestAsk,
			OBI:            v.OBI,
			Bucket:         string(v.Bucket),
			SpreadRatio:    known(v.SpreadRatio, v.SpreadKnown),
			DepthChangePct: known(v.DepthChangePct, v.DepthKnown),
			BidStaleSec:    known(v.BidStaleSec, v.BidStaleKnown),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": out})
}
