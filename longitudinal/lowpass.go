package longitudinal

// LowpassFilter1D is a first-order IIR low-pass filter:
//
//	y[k] = gain*y[k-1] + (1-gain)*x[k]
//
// A gain close to 1 smooths heavily, a gain of 0 passes the input through.
// The first sample after construction or Reset initializes the output so the
// filter never ramps up from an arbitrary zero.
type LowpassFilter1D struct {
	gain        float64
	y           float64
	initialized bool
}

// NewLowpassFilter1D creates a filter with the given smoothing gain in [0, 1).
func NewLowpassFilter1D(gain float64) *LowpassFilter1D {
	return &LowpassFilter1D{gain: gain}
}

// Reset forces the filter output to v.
func (f *LowpassFilter1D) Reset(v float64) {
	f.y = v
	f.initialized = true
}

// Filter feeds one sample and returns the new filtered output.
func (f *LowpassFilter1D) Filter(x float64) float64 {
	if !f.initialized {
		f.Reset(x)
		return x
	}
	f.y = f.gain*f.y + (1.0-f.gain)*x
	return f.y
}

// Value returns the current filter output without feeding a sample.
func (f *LowpassFilter1D) Value() float64 {
	return f.y
}
