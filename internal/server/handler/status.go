package handler

import (
	"net/http"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// RoundView is the scanner surface the status endpoint reads.
type RoundView interface {
	Round() domain.Round
	CanTrade() domain.TradeGate
}

// OpenCounter reports the number of open positions.
type OpenCounter interface {
	Count() int
}

// StatusHandler serves the mode, the current round and the trade gate.
type StatusHandler struct {
	mode      string
	strategy  string
	rounds    RoundView
	positions OpenCounter
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, strategyName string, rounds RoundView, positions OpenCounter) *StatusHandler {
	return &StatusHandler{mode: mode, strategy: strategyName, rounds: rounds, positions: positions}
}

type statusResponse struct {
	Mode          string  `json:"mode"`
	StrategyName  string  `json:"strategy_name"`
	RoundSlot     int64   `json:"round_slot"`
	TimeLeftSec   float64 `json:"time_left_sec"`
	AgeSec        float64 `json:"age_sec"`
	CanTrade      bool    `json:"can_trade"`
	GateReason    string  `json:"gate_reason,omitempty"`
	OpenPositions int     `json:"open_positions"`
}

// GetStatus responds with the mode, strategy and round state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	round := h.rounds.Round()
	gate := h.rounds.CanTrade()
	writeJSON(w, http.StatusOK, statusResponse{
		Mode:          h.mode,
		StrategyName:  h.strategy,
		RoundSlot:     round.Slot,
		TimeLeftSec:   round.TimeLeftSec,
		AgeSec:        round.AgeSec,
		CanTrade:      gate.OK,
		GateReason:    gate.Reason,
		OpenPositions: h.positions.Count(),
	})
}
