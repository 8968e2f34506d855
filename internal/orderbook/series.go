package orderbook

import "time"

// sample is one timestamped observation.
type sample[T any] struct {
	at time.Time
	v  T
}

// series is a timestamp-ordered deque. Eviction only happens from the front
// and only when a new sample is pushed.
type series[T any] struct {
	items []sample[T]
	head  int
}

// push appends v at ts and evicts everything older than ts-window. Samples
// older than the newest one are dropped so the deque stays ordered.
func (s *series[T]) push(ts time.Time, v T, window time.Duration) bool {
	if last, ok := s.last(); ok && ts.Before(last.at) {
		return false
	}
	s.items = append(s.items, sample[T]{at: ts, v: v})

	cutoff := ts.Add(-window)
	for s.head < len(s.items) && s.items[s.head].at.Before(cutoff) {
		s.head++
	}
	// Compact once the dead prefix dominates.
	if s.head > 32 && s.head*2 > len(s.items) {
		n := copy(s.items, s.items[s.head:])
		s.items = s.items[:n]
		s.head = 0
	}
	return true
}

func (s *series[T]) len() int { return len(s.items) - s.head }

func (s *series[T]) last() (sample[T], bool) {
	if s.len() == 0 {
		return sample[T]{}, false
	}
	return s.items[len(s.items)-1], true
}

// since returns the live samples at or after cutoff. The slice aliases the
// deque and must not be retained past the caller's lock.
func (s *series[T]) since(cutoff time.Time) []sample[T] {
	live := s.items[s.head:]
	i := 0
	for i < len(live) && live[i].at.Before(cutoff) {
		i++
	}
	return live[i:]
}
