package position

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// Sizing caps new positions.
type Sizing struct {
	MinShares      float64
	MaxShares      float64
	MaxPositionUSD float64
	MaxPositions   int
}

// DefaultSizing returns the sizing defaults.
func DefaultSizing() Sizing {
	return Sizing{MinShares: 5, MaxShares: 200, MaxPositionUSD: 50, MaxPositions: 3}
}

// AdmissionError names the cap a proposed entry failed.
type AdmissionError struct {
	Cap   string
	Value float64
	Limit float64
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("position: admission rejected: %s %.4g (limit %.4g)", e.Cap, e.Value, e.Limit)
}

// Unwrap lets callers match domain.ErrAdmission with errors.Is.
func (e *AdmissionError) Unwrap() error { return domain.ErrAdmission }

// SharesFor converts a dollar budget into whole shares at price, capped by
// MaxShares and MaxPositionUSD.
func (s Sizing) SharesFor(usd, price float64) float64 {
	if price <= 0 || usd <= 0 {
		return 0
	}
	if s.MaxPositionUSD > 0 && usd > s.MaxPositionUSD {
		usd = s.MaxPositionUSD
	}
	shares := math.Floor(usd / price)
	if s.MaxShares > 0 && shares > s.MaxShares {
		shares = s.MaxShares
	}
	return shares
}

// Admit checks a proposed entry against every cap. open is the number of
// positions already held.
func (s Sizing) Admit(shares, price float64, open int) error {
	if shares <= s.MinShares {
		return &AdmissionError{Cap: "min_shares", Value: shares, Limit: s.MinShares}
	}
	if s.MaxShares > 0 && shares > s.MaxShares {
		return &AdmissionError{Cap: "max_shares", Value: shares, Limit: s.MaxShares}
	}
	if cost := shares * price; s.MaxPositionUSD > 0 && cost > s.MaxPositionUSD {
		return &AdmissionError{Cap: "max_position_usd", Value: cost, Limit: s.MaxPositionUSD}
	}
	if s.MaxPositions > 0 && open >= s.MaxPositions {
		return &AdmissionError{Cap: "max_positions", Value: float64(open), Limit: float64(s.MaxPositions)}
	}
	return nil
}
