package position

import (
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// Trailing-stop regimes by time left in the round.
const (
	trailingWideAboveSec = 420
	trailingLateBelowSec = 180
)

// ExitParams are the thresholds of the exit policy. Percentages are PnL
// percentage points relative to the entry price.
type ExitParams struct {
	ForceExitSec float64

	TakeProfitPct float64
	StopLossPct   float64

	RatchetConfirmTicks        int
	RatchetConfirmTolerancePct float64
	RatchetGivebackPct         float64
	RatchetActivationPct       float64

	TrailingEnabled       bool
	TrailingActivationPct float64
	TrailingWidePct       float64
	TrailingMidPct        float64
	TrailingLatePct       float64

	DepthCollapsePct float64

	StaleProfitPct             float64
	StaleProfitBidUnchangedSec float64

	StagnantProfitPct   float64
	StagnantBandPct     float64
	StagnantDurationSec float64
}

// DefaultExitParams returns the exit defaults.
func DefaultExitParams() ExitParams {
	return ExitParams{
		ForceExitSec:               30,
		TakeProfitPct:              15,
		StopLossPct:                20,
		RatchetConfirmTicks:        3,
		RatchetConfirmTolerancePct: 1,
		RatchetGivebackPct:         5,
		RatchetActivationPct:       5,
		TrailingEnabled:            true,
		TrailingActivationPct:      5,
		TrailingWidePct:            10,
		TrailingMidPct:             6,
		TrailingLatePct:            3,
		DepthCollapsePct:           60,
		StaleProfitPct:             5,
		StaleProfitBidUnchangedSec: 20,
		StagnantProfitPct:          3,
		StagnantBandPct:            1,
		StagnantDurationSec:        45,
	}
}

// TrailingWidth returns the allowed giveback from the high-water mark for
// the given time left in the round.
func (p ExitParams) TrailingWidth(timeLeftSec float64) float64 {
	switch {
	case timeLeftSec > trailingWideAboveSec:
		return p.TrailingWidePct
	case timeLeftSec >= trailingLateBelowSec:
		return p.TrailingMidPct
	default:
		return p.TrailingLatePct
	}
}

// Signals are the market-side inputs of one exit evaluation.
type Signals struct {
	Now            time.Time
	TimeLeftSec    float64
	DepthCollapsed bool
	BidStaleSec    float64
	BidStaleKnown  bool
}

// evaluationOrder lists the per-tick triggers by priority. time_exit and
// manual are never raised by Evaluate.
var evaluationOrder = []domain.ExitReason{
	domain.ExitForce,
	domain.ExitStopLoss,
	domain.ExitRatchetFloor,
	domain.ExitTrailingStop,
	domain.ExitDepthCollapse,
	domain.ExitStaleProfit,
	domain.ExitStagnantProfit,
	domain.ExitTakeProfit,
}

// Evaluate returns the highest-priority exit reason that currently holds
// for p. The second value is false when the position should stay open.
func Evaluate(p *Position, sig Signals, params ExitParams) (domain.ExitReason, bool) {
	if p == nil || p.Closed() {
		return 0, false
	}
	for _, r := range evaluationOrder {
		if triggered(r, p, sig, params) {
			return r, true
		}
	}
	return 0, false
}

func triggered(r domain.ExitReason, p *Position, sig Signals, params ExitParams) bool {
	pnl := p.PnLPct()
	switch r {
	case domain.ExitForce:
		return sig.TimeLeftSec <= params.ForceExitSec
	case domain.ExitStopLoss:
		return params.StopLossPct > 0 && pnl <= -params.StopLossPct
	case domain.ExitRatchetFloor:
		high, ok := p.ConfirmedHighPct()
		return ok && high >= params.RatchetActivationPct && pnl < high-params.RatchetGivebackPct
	case domain.ExitTrailingStop:
		if !params.TrailingEnabled {
			return false
		}
		hwm := p.HighWaterPct()
		return hwm >= params.TrailingActivationPct && hwm-pnl > params.TrailingWidth(sig.TimeLeftSec)
	case domain.ExitDepthCollapse:
		return sig.DepthCollapsed && p.AdverseMove()
	case domain.ExitStaleProfit:
		return sig.BidStaleKnown && pnl >= params.StaleProfitPct &&
			sig.BidStaleSec >= params.StaleProfitBidUnchangedSec
	case domain.ExitStagnantProfit:
		d, ok := p.StagnantFor(sig.Now)
		return ok && params.StagnantDurationSec > 0 && d.Seconds() >= params.StagnantDurationSec
	case domain.ExitTakeProfit:
		return params.TakeProfitPct > 0 && pnl >= params.TakeProfitPct
	case domain.ExitTime, domain.ExitManual:
		return false
	}
	return false
}
