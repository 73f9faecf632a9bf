package longitudinal

import "math"

// CommandFilter is the shared post-processing chain applied to every raw
// acceleration command regardless of state: value clamp, jerk clamp against
// the previous tick, low-pass smoothing, then slope compensation. The jerk
// limit runs on the pre-compensation command so a changing road grade never
// eats into the jerk headroom of the feedback itself.
type CommandFilter struct {
	limits AccelLimits
	slope  SlopeParams

	lpfAcc *LowpassFilter1D
}

// FilterDiagnostics exposes the chain's intermediate values for telemetry.
type FilterDiagnostics struct {
	RawAcc       float64
	AccLimited   float64
	JerkLimited  float64
	Smoothed     float64
	SlopeComp    float64
	ClampedPitch float64
}

// NewCommandFilter creates the shared filter chain.
func NewCommandFilter(limits AccelLimits, slope SlopeParams, lpfGain float64) *CommandFilter {
	return &CommandFilter{
		limits: limits,
		slope:  slope,
		lpfAcc: NewLowpassFilter1D(lpfGain),
	}
}

// SetParams swaps in new bounds between ticks.
func (f *CommandFilter) SetParams(limits AccelLimits, slope SlopeParams) {
	f.limits = limits
	f.slope = slope
}

// Apply runs the chain for one tick. prevRawAcc is the previous tick's
// command before slope compensation and feeds the inner jerk clamp, so a
// changing grade never consumes the feedback's jerk headroom; prevFinalAcc is
// the previous published command and bounds the output the actuator sees.
// With dt = 0 the jerk clamps pin the output to the previous command, so
// startup cannot produce a step.
func (f *CommandFilter) Apply(rawAcc float64, data ControlData, prevRawAcc, prevFinalAcc float64) (float64, FilterDiagnostics) {
	diag := FilterDiagnostics{RawAcc: rawAcc}

	acc := clampFloat(rawAcc, f.limits.MinAcc, f.limits.MaxAcc)
	diag.AccLimited = acc

	acc = applyDiffLimit(acc, prevRawAcc, data.DT, f.limits.MinJerk, f.limits.MaxJerk)
	diag.JerkLimited = acc

	acc = f.lpfAcc.Filter(acc)
	// Smoothing must not undo the hard bounds.
	acc = clampFloat(acc, f.limits.MinAcc, f.limits.MaxAcc)
	acc = applyDiffLimit(acc, prevRawAcc, data.DT, f.limits.MinJerk, f.limits.MaxJerk)
	diag.Smoothed = acc

	comp := f.slopeCompensation(data.SlopeAngle, data.Shift)
	diag.SlopeComp = comp
	diag.ClampedPitch = clampFloat(data.SlopeAngle, f.slope.MinPitchRad, f.slope.MaxPitchRad)

	// The published value must honor the jerk and acceleration bounds even
	// with the compensation term added, in that order: clamping after the
	// rate limit can only shrink the step as long as the previous command
	// was itself in bounds.
	final := applyDiffLimit(acc+comp, prevFinalAcc, data.DT, f.limits.MinJerk, f.limits.MaxJerk)
	final = clampFloat(final, f.limits.MinAcc, f.limits.MaxAcc)
	return final, diag
}

// slopeCompensation returns the additive gravity term for the given pitch
// and travel direction. Pitch is clamped to its configured band first so a
// sensor glitch cannot command an extreme compensation. Upward pitch is
// negative, so forward motion on an uphill gets a positive (propulsive)
// term; the sign flips in reverse.
func (f *CommandFilter) slopeCompensation(pitch float64, shift Shift) float64 {
	if !f.slope.Enable {
		return 0
	}
	p := clampFloat(pitch, f.slope.MinPitchRad, f.slope.MaxPitchRad)
	return -shift.Sign() * Gravity * math.Sin(p)
}

// ResetSmoothing re-seeds the acceleration low-pass filter, used when the
// controller restarts from a cleared history.
func (f *CommandFilter) ResetSmoothing(v float64) {
	f.lpfAcc.Reset(v)
}
