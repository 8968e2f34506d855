package scanner

import (
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// RoundAt places now on the fixed round grid. All arithmetic is done in
// whole milliseconds since the epoch.
func RoundAt(now time.Time, dur time.Duration) domain.Round {
	durMs := dur.Milliseconds()
	if durMs <= 0 {
		return domain.Round{}
	}
	nowMs := now.UnixMilli()
	slot := floorDiv(nowMs, durMs)
	startMs := slot * durMs
	expMs := startMs + durMs

	left := float64(expMs-nowMs) / 1000
	if left < 0 {
		left = 0
	}
	return domain.Round{
		Slot:        slot,
		Duration:    dur,
		StartsAt:    time.UnixMilli(startMs),
		ExpiresAt:   time.UnixMilli(expMs),
		TimeLeftSec: left,
		AgeSec:      dur.Seconds() - left,
	}
}

// SlotOf returns the slot of the round that expires at expiresAt. A market
// expiring exactly on a boundary belongs to the slot that ends there.
func SlotOf(expiresAt time.Time, dur time.Duration) int64 {
	durMs := dur.Milliseconds()
	if durMs <= 0 {
		return 0
	}
	return floorDiv(expiresAt.UnixMilli()-1, durMs)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
