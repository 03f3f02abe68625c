package strategy

import (
	"math"
	"time"
)

type levelSample struct {
	ts  time.Time
	qty float64
}

type levelSide string

const (
	sideBid levelSide = "bid"
	sideAsk levelSide = "ask"
)

// levelHistory is the sliding quantity history of one price level.
type levelHistory struct {
	side      levelSide
	samples   []levelSample
	firstSeen time.Time
	refills   int
}

func newLevelHistory(side levelSide, now time.Time) *levelHistory {
	return &levelHistory{
		side:      side,
		samples:   nil,
		firstSeen: now,
		refills:   0,
	}
}

// observe appends a sample, prunes the window, and updates the refill count.
// A refill is a depletion followed by a fast restoration: the quantity drops
// below half the prior size and comes back above 80% of it within the speed
// threshold.
func (h *levelHistory) observe(now time.Time, qty float64, window time.Duration, refillSpeed float64) {
	cutoff := now.Add(-window)
	for len(h.samples) > 0 && h.samples[0].ts.Before(cutoff) {
		h.samples = h.samples[1:]
	}
	if len(h.samples) == 0 {
		// The whole history aged out; the level is effectively new.
		h.firstSeen = now
		h.refills = 0
	}
	h.samples = append(h.samples, levelSample{ts: now, qty: qty})

	if n := len(h.samples); n >= 3 {
		v0 := h.samples[n-3]
		v1 := h.samples[n-2]
		v2 := h.samples[n-1]
		if v1.qty < 0.5*v0.qty && v2.qty > 0.8*v0.qty && v2.ts.Sub(v1.ts).Seconds() < refillSpeed {
			h.refills++
		}
	}
}

// stale reports whether every sample has aged out of the window.
func (h *levelHistory) stale(now time.Time, window time.Duration) bool {
	if len(h.samples) == 0 {
		return true
	}
	return h.samples[len(h.samples)-1].ts.Before(now.Add(-window))
}

// persistence is how long the level has been continuously observed.
func (h *levelHistory) persistence(now time.Time) float64 {
	return now.Sub(h.firstSeen).Seconds()
}

// stats returns mean, standard deviation, and coefficient of variation of
// the retained quantities.
func (h *levelHistory) stats() (mean, std, cv float64) {
	n := float64(len(h.samples))
	if n == 0 {
		return 0, 0, 0
	}
	for _, s := range h.samples {
		mean += s.qty
	}
	mean /= n
	if mean == 0 {
		return 0, 0, 0
	}
	for _, s := range h.samples {
		d := s.qty - mean
		std += d * d
	}
	std = math.Sqrt(std / n)
	return mean, std, std / mean
}

// symbolLevels tracks every observed price level for one symbol.
type symbolLevels struct {
	levels     map[string]*levelHistory
	lastSignal time.Time
	lastTouch  time.Time
}

func newSymbolLevels(now time.Time) *symbolLevels {
	return &symbolLevels{
		levels:     make(map[string]*levelHistory),
		lastSignal: time.Time{},
		lastTouch:  now,
	}
}
