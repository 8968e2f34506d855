package domain

import (
	"strings"
	"time"
)

// Direction is the outcome side of an Up/Down round market.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Opposite returns the other outcome side.
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// Round is one fixed-duration slot on the wall-clock grid. It is computed
// from the clock alone and never mutated.
type Round struct {
	Slot        int64
	Duration    time.Duration
	StartsAt    time.Time
	ExpiresAt   time.Time
	TimeLeftSec float64
	AgeSec      float64
}

// Market is the tradeable Up/Down instrument for one asset in one round.
// UpPrice and DownPrice are refreshed in place by live ticks.
type Market struct {
	Asset        string    `json:"asset"`
	ConditionID  string    `json:"condition_id"`
	QuestionID   string    `json:"question_id"`
	Question     string    `json:"question"`
	Slug         string    `json:"slug"`
	UpTokenID    string    `json:"up_token_id"`
	DownTokenID  string    `json:"down_token_id"`
	UpPrice      float64   `json:"up_price"`
	DownPrice    float64   `json:"down_price"`
	ExpiresAt    time.Time `json:"expires_at"`
	RoundSlot    int64     `json:"round_slot"`
	NegRisk      bool      `json:"neg_risk"`
	Volume       float64   `json:"volume"`
	Liquidity    float64   `json:"liquidity"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// TokenID returns the outcome token for the given direction.
func (m Market) TokenID(d Direction) string {
	if d == DirectionUp {
		return m.UpTokenID
	}
	return m.DownTokenID
}

// Price returns the last known price for the given direction.
func (m Market) Price(d Direction) float64 {
	if d == DirectionUp {
		return m.UpPrice
	}
	return m.DownPrice
}

// DirectionOf reports which side of the market tokenID belongs to.
func (m Market) DirectionOf(tokenID string) (Direction, bool) {
	switch tokenID {
	case "":
		return "", false
	case m.UpTokenID:
		return DirectionUp, true
	case m.DownTokenID:
		return DirectionDown, true
	}
	return "", false
}

// CatalogToken is one outcome of a market as reported by the discovery feed.
type CatalogToken struct {
	TokenID  string
	Outcome  string
	Price    float64
	HasPrice bool
}

// CatalogMarket is a raw discovery candidate before round filtering.
type CatalogMarket struct {
	ConditionID string
	QuestionID  string
	Question    string
	Slug        string
	Tokens      []CatalogToken
	EndDate     time.Time
	Active      bool
	Closed      bool
	NegRisk     bool
	Volume      float64
	Liquidity   float64
}

// PricedOutcomes counts the outcomes that carry both a token ID and a price.
func (c CatalogMarket) PricedOutcomes() int {
	n := 0
	for _, t := range c.Tokens {
		if t.TokenID != "" && t.HasPrice {
			n++
		}
	}
	return n
}

// OutcomeDirection maps an outcome label onto Up/Down. Labels are matched
// case-insensitively against {yes, up} and {no, down}.
func OutcomeDirection(label string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "yes", "up":
		return DirectionUp, true
	case "no", "down":
		return DirectionDown, true
	}
	return "", false
}

// TradeGate is the result of the scanner's trading permission check.
type TradeGate struct {
	OK     bool
	Reason string
}
