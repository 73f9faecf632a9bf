package longitudinal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLimits() AccelLimits {
	return AccelLimits{MaxAcc: 3.0, MinAcc: -5.0, MaxJerk: 2.0, MinJerk: -5.0}
}

func flatSlope() SlopeParams {
	return SlopeParams{Enable: true, MaxPitchRad: 0.1, MinPitchRad: -0.1}
}

// passthroughFilter builds a chain whose smoothing is disabled so the
// clamping behavior is visible directly.
func passthroughFilter(limits AccelLimits, slope SlopeParams) *CommandFilter {
	return NewCommandFilter(limits, slope, 0.0)
}

func TestAccelClamp(t *testing.T) {
	f := passthroughFilter(testLimits(), flatSlope())
	data := ControlData{DT: 10.0} // huge dt: jerk limits are not binding

	out, diag := f.Apply(100.0, data, 0.0, 0.0)
	assert.InDelta(t, 3.0, out, 1e-9)
	assert.InDelta(t, 3.0, diag.AccLimited, 1e-9)

	out, _ = f.Apply(-100.0, data, 0.0, 0.0)
	assert.InDelta(t, -5.0, out, 1e-9)
}

func TestJerkClamp(t *testing.T) {
	f := passthroughFilter(testLimits(), flatSlope())
	data := ControlData{DT: 0.1}

	// Requested step +1.0 from prev 0.0, but max_jerk*dt = 0.2.
	out, diag := f.Apply(1.0, data, 0.0, 0.0)
	assert.InDelta(t, 0.2, out, 1e-9)
	assert.InDelta(t, 0.2, diag.JerkLimited, 1e-9)

	// Downward steps use min_jerk: -5.0*0.1 = -0.5.
	out, _ = f.Apply(-3.0, data, 0.0, 0.0)
	assert.InDelta(t, -0.5, out, 1e-9)
}

func TestZeroDTPinsOutputToPrevious(t *testing.T) {
	f := passthroughFilter(testLimits(), flatSlope())
	data := ControlData{DT: 0.0, SlopeAngle: -0.05}

	out, _ := f.Apply(2.5, data, 1.0, 1.0)
	assert.InDelta(t, 1.0, out, 1e-9)
}

func TestSlopeCompensationSign(t *testing.T) {
	f := passthroughFilter(testLimits(), flatSlope())
	uphill := ControlData{DT: 10.0, SlopeAngle: -0.05, Shift: ShiftForward}
	flat := ControlData{DT: 10.0, Shift: ShiftForward}

	base, _ := f.Apply(1.0, flat, 1.0, 1.0)
	comp, diag := f.Apply(1.0, uphill, 1.0, 1.0)
	assert.Greater(t, comp, base, "uphill forward must add propulsion")
	assert.Positive(t, diag.SlopeComp)

	uphill.Shift = ShiftReverse
	comp, diag = f.Apply(1.0, uphill, 1.0, 1.0)
	assert.Less(t, comp, base, "sign flips in reverse")
	assert.Negative(t, diag.SlopeComp)
}

func TestSlopeCompensationPitchClamp(t *testing.T) {
	f := passthroughFilter(testLimits(), flatSlope())
	glitch := ControlData{DT: 10.0, SlopeAngle: -1.2, Shift: ShiftForward}

	_, diag := f.Apply(0.0, glitch, 0.0, 0.0)
	assert.InDelta(t, -0.1, diag.ClampedPitch, 1e-9)
	// Compensation reflects the clamped pitch, not the glitch.
	assert.InDelta(t, Gravity*0.0998, diag.SlopeComp, 1e-3)
}

func TestSlopeCompensationDisabled(t *testing.T) {
	slope := flatSlope()
	slope.Enable = false
	f := passthroughFilter(testLimits(), slope)
	data := ControlData{DT: 10.0, SlopeAngle: -0.08, Shift: ShiftForward}

	_, diag := f.Apply(1.0, data, 1.0, 1.0)
	assert.Zero(t, diag.SlopeComp)
}

func TestPublishedValueHonorsBoundsWithCompensation(t *testing.T) {
	f := passthroughFilter(testLimits(), flatSlope())
	// Raw already at max acc on a steep uphill: compensation pushes past
	// the band, but the published value must stay inside it.
	data := ControlData{DT: 10.0, SlopeAngle: -0.1, Shift: ShiftForward}
	out, _ := f.Apply(3.0, data, 3.0, 2.9)
	assert.LessOrEqual(t, out, 3.0)
	assert.GreaterOrEqual(t, out, -5.0)
}
