package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	ConditionID   string    `json:"conditionId"`
	QuestionID    string    `json:"questionID"`
	Slug          string    `json:"slug"`
	Active        flexBool  `json:"active"` // API may send bool or "true"/"false" string
	Closed        flexBool  `json:"closed"`
	NegRisk       bool      `json:"negRisk"`
	Outcomes      string    `json:"outcomes"`      // JSON-encoded: e.g. "[\"Up\",\"Down\"]"
	OutcomePrices string    `json:"outcomePrices"` // JSON-encoded: e.g. "[\"0.5\",\"0.5\"]"
	ClobTokenIDs  string    `json:"clobTokenIds"`  // JSON-encoded: e.g. "[\"123\",\"456\"]"
	Tokens        []Token   `json:"tokens"`
	EndDate       string    `json:"endDate"`
	EndDateISO    string    `json:"endDateIso"`
	Volume        flexFloat `json:"volumeNum"`
	Liquidity     flexFloat `json:"liquidityNum"`
}

// Token represents a token entry inside the Gamma API market response.
type Token struct {
	TokenID string    `json:"token_id"`
	Outcome string    `json:"outcome"`
	Price   flexFloat `json:"price"`
	Winner  bool      `json:"winner"`
}

// ToCatalogMarket converts a Gamma market into a discovery candidate.
// Outcomes come from the tokens array when present and otherwise from the
// three JSON-encoded parallel arrays.
func (m *APIMarket) ToCatalogMarket() domain.CatalogMarket {
	cm := domain.CatalogMarket{
		ConditionID: m.ConditionID,
		QuestionID:  m.QuestionID,
		Question:    m.Question,
		Slug:        m.Slug,
		Active:      bool(m.Active),
		Closed:      bool(m.Closed),
		NegRisk:     m.NegRisk,
		Volume:      float64(m.Volume),
		Liquidity:   float64(m.Liquidity),
		EndDate:     parseEndDate(m.EndDate, m.EndDateISO),
	}

	if len(m.Tokens) > 0 {
		for _, t := range m.Tokens {
			cm.Tokens = append(cm.Tokens, domain.CatalogToken{
				TokenID:  t.TokenID,
				Outcome:  t.Outcome,
				Price:    float64(t.Price),
				HasPrice: t.Price > 0,
			})
		}
		return cm
	}

	outcomes := decodeStringArray(m.Outcomes)
	prices := decodeStringArray(m.OutcomePrices)
	ids := decodeStringArray(m.ClobTokenIDs)
	for i, o := range outcomes {
		tok := domain.CatalogToken{Outcome: o}
		if i < len(ids) {
			tok.TokenID = ids[i]
		}
		if i < len(prices) {
			if p, err := strconv.ParseFloat(prices[i], 64); err == nil {
				tok.Price = p
				tok.HasPrice = true
			}
		}
		cm.Tokens = append(cm.Tokens, tok)
	}
	return cm
}

func decodeStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func parseEndDate(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// BookMessage represents a full orderbook snapshot delivered over WebSocket.
type BookMessage struct {
	EventType string         `json:"event_type"`
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// WSPriceLevel is a single bid/ask level in the WebSocket orderbook data.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// PriceChangeMessage carries incremental level updates. Older frames put a
// single change at the top level, newer ones batch them in price_changes.
type PriceChangeMessage struct {
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market"`
	Side      string          `json:"side"` // "BUY" or "SELL"
	Price     string          `json:"price"`
	Size      string          `json:"size"` // "0" means level removed
	Changes   []WSPriceChange `json:"price_changes"`
	Timestamp string          `json:"timestamp"`
}

// WSPriceChange is one entry of a batched price_change frame.
type WSPriceChange struct {
	AssetID string `json:"asset_id"`
	Side    string `json:"side"`
	Price   string `json:"price"`
	Size    string `json:"size"`
}

// WSCommand is the JSON payload sent to the WebSocket to subscribe/unsubscribe.
type WSCommand struct {
	Type      string   `json:"type"` // "market" on first subscribe
	Operation string   `json:"operation,omitempty"`
	Assets    []string `json:"assets_ids"`
}

// BookEvent is a decoded book frame: raw ladders for one token.
type BookEvent struct {
	TokenID   string
	Market    string
	Bids      []domain.PriceLevel
	Asks      []domain.PriceLevel
	Timestamp time.Time
}

// --------------------------------------------------------------------------
// Conversion helpers: wire types -> domain types
// --------------------------------------------------------------------------

// BookToEvent converts a BookMessage to raw ladders. Unparseable levels are
// skipped.
func BookToEvent(b *BookMessage, now time.Time) BookEvent {
	return BookEvent{
		TokenID:   b.AssetID,
		Market:    b.Market,
		Bids:      parseLevels(b.Bids),
		Asks:      parseLevels(b.Asks),
		Timestamp: parseTimestamp(b.Timestamp, now),
	}
}

// PriceChangesToDomain flattens a price_change frame into level updates.
func PriceChangesToDomain(p *PriceChangeMessage, now time.Time) []domain.PriceChange {
	ts := parseTimestamp(p.Timestamp, now)
	if len(p.Changes) == 0 {
		pc, ok := toPriceChange(p.AssetID, p.Side, p.Price, p.Size, ts)
		if !ok {
			return nil
		}
		return []domain.PriceChange{pc}
	}
	out := make([]domain.PriceChange, 0, len(p.Changes))
	for _, c := range p.Changes {
		asset := c.AssetID
		if asset == "" {
			asset = p.AssetID
		}
		if pc, ok := toPriceChange(asset, c.Side, c.Price, c.Size, ts); ok {
			out = append(out, pc)
		}
	}
	return out
}

func toPriceChange(asset, side, price, size string, ts time.Time) (domain.PriceChange, bool) {
	p, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return domain.PriceChange{}, false
	}
	s, err := strconv.ParseFloat(size, 64)
	if err != nil {
		return domain.PriceChange{}, false
	}
	pc := domain.PriceChange{TokenID: asset, Price: p, Size: s, Timestamp: ts}
	switch strings.ToUpper(side) {
	case "BUY":
		pc.Side = domain.OrderSideBuy
	case "SELL":
		pc.Side = domain.OrderSideSell
	default:
		return domain.PriceChange{}, false
	}
	return pc, true
}

func parseLevels(in []WSPriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, lvl := range in {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		s, err := strconv.ParseFloat(lvl.Size, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out
}

// parseTimestamp accepts unix seconds, unix milliseconds or RFC3339.
func parseTimestamp(s string, fallback time.Time) time.Time {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n)
		}
		return time.Unix(n, 0)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return fallback
}
