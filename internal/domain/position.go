package domain

import (
	"fmt"
	"time"
)

// ExitReason is the closed set of reasons a position can be closed for.
// The zero value is not a valid reason.
type ExitReason uint8

const (
	ExitForce ExitReason = iota + 1
	ExitStopLoss
	ExitRatchetFloor
	ExitTrailingStop
	ExitDepthCollapse
	ExitStaleProfit
	ExitStagnantProfit
	ExitTakeProfit
	ExitTime
	ExitManual
)

var exitReasonNames = [...]string{
	ExitForce:          "force_exit",
	ExitStopLoss:       "stop_loss",
	ExitRatchetFloor:   "ratchet_floor",
	ExitTrailingStop:   "trailing_stop",
	ExitDepthCollapse:  "depth_collapse",
	ExitStaleProfit:    "stale_profit",
	ExitStagnantProfit: "stagnant_profit",
	ExitTakeProfit:     "take_profit",
	ExitTime:           "time_exit",
	ExitManual:         "manual",
}

// AllExitReasons lists every valid reason in declaration order.
var AllExitReasons = []ExitReason{
	ExitForce, ExitStopLoss, ExitRatchetFloor, ExitTrailingStop,
	ExitDepthCollapse, ExitStaleProfit, ExitStagnantProfit, ExitTakeProfit,
	ExitTime, ExitManual,
}

// Valid reports whether r is a known reason.
func (r ExitReason) Valid() bool {
	return r >= ExitForce && r <= ExitManual
}

func (r ExitReason) String() string {
	if !r.Valid() {
		return fmt.Sprintf("exit_reason(%d)", uint8(r))
	}
	return exitReasonNames[r]
}

// ForcesTaker reports whether exits for this reason must cross the spread
// regardless of execution preferences.
func (r ExitReason) ForcesTaker() bool {
	return r == ExitForce || r == ExitStopLoss || r == ExitTime
}

// Priority is the evaluation rank of the reason. Lower ranks are checked
// first and win when several triggers hold at once.
func (r ExitReason) Priority() int { return int(r) }

// MarshalText implements encoding.TextMarshaler.
func (r ExitReason) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("domain: invalid exit reason %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ExitReason) UnmarshalText(text []byte) error {
	v, err := ParseExitReason(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseExitReason converts the wire name back into an ExitReason.
func ParseExitReason(s string) (ExitReason, error) {
	for _, r := range AllExitReasons {
		if exitReasonNames[r] == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("domain: unknown exit reason %q", s)
}

// ClosedPosition is the immutable record of a finished position. It is owned
// by history and stats, never by the live engine.
type ClosedPosition struct {
	ID            string     `json:"id"`
	Asset         string     `json:"asset"`
	ConditionID   string     `json:"condition_id"`
	RoundSlot     int64      `json:"round_slot"`
	Direction     Direction  `json:"direction"`
	TokenID       string     `json:"token_id"`
	Strategy      string     `json:"strategy"`
	EntryPrice    float64    `json:"entry_price"`
	ExitPrice     float64    `json:"exit_price"`
	Shares        float64    `json:"shares"`
	CostUSD       float64    `json:"cost_usd"`
	WasMakerEntry bool       `json:"was_maker_entry"`
	WasMakerExit  bool       `json:"was_maker_exit"`
	EntryFeeUSD   float64    `json:"entry_fee_usd"`
	ExitFeeUSD    float64    `json:"exit_fee_usd"`
	GrossPnL      float64    `json:"gross_pnl"`
	NetPnL        float64    `json:"net_pnl"`
	NetPnLPct     float64    `json:"net_pnl_pct"`
	HighWaterPct  float64    `json:"high_water_pct"`
	ExitReason    ExitReason `json:"exit_reason"`
	OpenedAt      time.Time  `json:"opened_at"`
	ClosedAt      time.Time  `json:"closed_at"`
	HoldTimeSec   float64    `json:"hold_time_sec"`
}

// PositionEvent is published on the bus whenever a position opens or closes.
type PositionEvent struct {
	Event      string    `json:"event"`
	PositionID string    `json:"position_id"`
	Asset      string    `json:"asset"`
	Direction  Direction `json:"direction"`
	TokenID    string    `json:"token_id"`
	Price      float64   `json:"price"`
	Shares     float64   `json:"shares"`
	Reason     string    `json:"reason,omitempty"`
	NetPnL     float64   `json:"net_pnl,omitempty"`
	At         time.Time `json:"at"`
}

// HistorySummary aggregates closed positions over a period.
type HistorySummary struct {
	Count    int64                `json:"count"`
	Wins     int64                `json:"wins"`
	NetPnL   float64              `json:"net_pnl"`
	AvgHold  float64              `json:"avg_hold_sec"`
	ByReason map[ExitReason]int64 `json:"by_reason"`
}
