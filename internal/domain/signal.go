package domain

import "time"

// EntryIntent is emitted by an entry strategy when it wants to open a
// position on one side of a round market.
type EntryIntent struct {
	Source    string
	Asset     string
	Direction Direction
	SizeUSD   float64
	Reason    string
	Metadata  map[string]string
	CreatedAt time.Time
}
