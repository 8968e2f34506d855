// Package strategy holds the pluggable entry heuristics. A strategy only
// proposes which side of a round market to buy; timing gates, sizing and
// execution belong to the engine.
package strategy

import (
	"context"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// Input is everything an entry strategy sees for one market on one tick.
type Input struct {
	Market  domain.Market
	Round   domain.Round
	Up      domain.OrderbookSnapshot
	Down    domain.OrderbookSnapshot
	HasUp   bool
	HasDown bool
}

// Book returns the snapshot of the given side.
func (in Input) Book(d domain.Direction) (domain.OrderbookSnapshot, bool) {
	if d == domain.DirectionUp {
		return in.Up, in.HasUp
	}
	return in.Down, in.HasDown
}

// EntryStrategy proposes entries.
type EntryStrategy interface {
	Name() string
	Evaluate(ctx context.Context, in Input) (domain.EntryIntent, bool)
}

// SpreadGauge reports market-maker conviction from the rolling spread.
type SpreadGauge interface {
	IsMMLowConviction(tokenID string, current float64) bool
	IsMMCapitulation(tokenID string, current float64) bool
}

// Config holds strategy configuration.
type Config struct {
	Name    string
	SizeUSD float64
	Params  map[string]any
}

// floatParam reads a numeric parameter, accepting the int64 values TOML
// produces for whole numbers.
func (c Config) floatParam(key string, def float64) float64 {
	switch v := c.Params[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}
