package longitudinal

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// TimedValue is one timestamped scalar sample.
type TimedValue struct {
	Stamp time.Time
	Value float64
}

// CommandHistory retains the acceleration commands issued during the
// trailing actuation-delay window. It is used to reconstruct how much
// velocity change is in flight but not yet realized by the vehicle.
type CommandHistory struct {
	window  time.Duration
	entries []TimedValue
}

// NewCommandHistory creates a history bounded by the actuation-delay window.
func NewCommandHistory(window time.Duration) *CommandHistory {
	return &CommandHistory{window: window}
}

// Push appends a command and drops entries that have left the window.
func (h *CommandHistory) Push(stamp time.Time, acc float64) {
	h.entries = append(h.entries, TimedValue{Stamp: stamp, Value: acc})
	h.prune(stamp)
}

func (h *CommandHistory) prune(now time.Time) {
	cutoff := now.Add(-h.window)
	// A command stays active until the next one is issued, so entry i is
	// stale only once entry i+1 predates the window as well.
	i := 0
	for i+1 < len(h.entries) && !h.entries[i+1].Stamp.After(cutoff) {
		i++
	}
	if i > 0 {
		h.entries = append(h.entries[:0], h.entries[i:]...)
	}
}

// Len returns the number of buffered commands.
func (h *CommandHistory) Len() int {
	return len(h.entries)
}

// Reset drops all buffered commands.
func (h *CommandHistory) Reset() {
	h.entries = h.entries[:0]
}

// PredictVelocity integrates the buffered commands from now-delay to now and
// returns the velocity the vehicle is expected to have once a command issued
// now takes effect. With an empty history the current acceleration estimate
// is extrapolated over the delay instead.
func (h *CommandHistory) PredictVelocity(current Motion, now time.Time, delay time.Duration) float64 {
	if delay <= 0 {
		return current.Vel
	}
	if len(h.entries) == 0 {
		return current.Vel + current.Acc*delay.Seconds()
	}

	start := now.Add(-delay)
	pred := current.Vel
	for i, e := range h.entries {
		from := e.Stamp
		if from.Before(start) {
			from = start
		}
		to := now
		if i+1 < len(h.entries) {
			to = h.entries[i+1].Stamp
		}
		if !to.After(from) {
			continue
		}
		pred += e.Value * to.Sub(from).Seconds()
	}
	return pred
}

// VelocityHistory keeps a short window of velocity samples and estimates the
// current acceleration as the least-squares slope over that window, which is
// far less noise-prone than a two-sample difference.
type VelocityHistory struct {
	window  time.Duration
	entries []TimedValue
}

// NewVelocityHistory creates a history bounded by the given time window.
func NewVelocityHistory(window time.Duration) *VelocityHistory {
	return &VelocityHistory{window: window}
}

// Push appends a velocity sample and drops samples that have left the
// window. Out-of-order samples are ignored.
func (h *VelocityHistory) Push(stamp time.Time, vel float64) {
	if n := len(h.entries); n > 0 && !stamp.After(h.entries[n-1].Stamp) {
		return
	}
	h.entries = append(h.entries, TimedValue{Stamp: stamp, Value: vel})
	cutoff := stamp.Add(-h.window)
	i := 0
	for i < len(h.entries)-1 && h.entries[i].Stamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		h.entries = append(h.entries[:0], h.entries[i:]...)
	}
}

// Len returns the number of buffered samples.
func (h *VelocityHistory) Len() int {
	return len(h.entries)
}

// Latest returns the most recent sample; ok is false when empty.
func (h *VelocityHistory) Latest() (TimedValue, bool) {
	if len(h.entries) == 0 {
		return TimedValue{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// EstimateAccel returns the regression slope of velocity over time across
// the buffered window, or 0 when the window holds fewer than two samples or
// spans too little time to divide by.
func (h *VelocityHistory) EstimateAccel() float64 {
	n := len(h.entries)
	if n < 2 {
		return 0
	}
	span := h.entries[n-1].Stamp.Sub(h.entries[0].Stamp).Seconds()
	if span < 1e-3 {
		return 0
	}
	ts := make([]float64, n)
	vs := make([]float64, n)
	t0 := h.entries[0].Stamp
	for i, e := range h.entries {
		ts[i] = e.Stamp.Sub(t0).Seconds()
		vs[i] = e.Value
	}
	_, slope := stat.LinearRegression(ts, vs, nil, false)
	if !isFinite(slope) {
		return 0
	}
	return slope
}

// Reset drops all buffered samples.
func (h *VelocityHistory) Reset() {
	h.entries = h.entries[:0]
}
