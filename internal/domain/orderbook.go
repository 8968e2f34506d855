package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderbookSnapshot is the normalized view of one token's book at a point in
// time. It is recomputed on every raw ladder observation and never mutated.
type OrderbookSnapshot struct {
	TokenID   string       `json:"token_id"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	BidDepth  float64      `json:"bid_depth"`
	AskDepth  float64      `json:"ask_depth"`
	OBI       float64      `json:"obi"`
	Spread    float64      `json:"spread"`
	SpreadPct float64      `json:"spread_pct"`
	BestBid   float64      `json:"best_bid"`
	BestAsk   float64      `json:"best_ask"`
	MidPrice  float64      `json:"mid_price"`
	Timestamp time.Time    `json:"timestamp"`
}

// TotalDepth is the combined resting size on both sides.
func (s OrderbookSnapshot) TotalDepth() float64 {
	return s.BidDepth + s.AskDepth
}

// PriceChange is an incremental orderbook level update.
type PriceChange struct {
	TokenID   string
	Side      OrderSide
	Price     float64
	Size      float64 // 0 removes the level
	Timestamp time.Time
}

// OBIBucket is the five-way categorization of orderbook imbalance.
type OBIBucket string

const (
	OBIBidHeavy OBIBucket = "bid_heavy"
	OBIBidLean  OBIBucket = "bid_lean"
	OBIBalanced OBIBucket = "balanced"
	OBIAskLean  OBIBucket = "ask_lean"
	OBIAskHeavy OBIBucket = "ask_heavy"
)
