package handler

import (
	"net/http"
	"strings"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// MarketSource defines the scanner methods the market handler requires. It
// is declared locally so the handler package does not depend on the scanner.
type MarketSource interface {
	Markets() []domain.Market
	Market(asset string) (domain.Market, bool)
}

// MarketHandler serves the current round's markets.
type MarketHandler struct {
	markets MarketSource
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketSource) *MarketHandler {
	return &MarketHandler{markets: markets}
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
}

// ListMarkets returns every market of the current round.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.Markets()
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: markets})
}

// GetMarket returns the market of one asset.
// GET /api/markets/{asset}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	asset := strings.ToUpper(r.PathValue("asset"))
	m, ok := h.markets.Market(asset)
	if !ok {
		writeError(w, http.StatusNotFound, "no market for asset "+asset)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
