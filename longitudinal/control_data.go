package longitudinal

import (
	"math"
	"time"
)

// ControlDataBuilder derives the per-tick ControlData snapshot from the
// latest pose, trajectory and velocity inputs. It owns the slope low-pass
// filter, the previous shift (held across zero target velocity to avoid
// chatter) and the dt bookkeeping.
type ControlDataBuilder struct {
	transition StateTransitionParams
	slope      SlopeParams

	lpfPitch  *LowpassFilter1D
	prevShift Shift
	prevTick  time.Time
	hasTicked bool
}

// NewControlDataBuilder creates a builder with the given thresholds.
func NewControlDataBuilder(transition StateTransitionParams, slope SlopeParams) *ControlDataBuilder {
	return &ControlDataBuilder{
		transition: transition,
		slope:      slope,
		lpfPitch:   NewLowpassFilter1D(slope.LPFGain),
		prevShift:  ShiftForward,
	}
}

// Reset clears the per-run state so the next Build behaves like a first
// tick.
func (b *ControlDataBuilder) Reset() {
	b.lpfPitch = NewLowpassFilter1D(b.slope.LPFGain)
	b.prevShift = ShiftForward
	b.hasTicked = false
}

// SetParams swaps in new thresholds between ticks.
func (b *ControlDataBuilder) SetParams(transition StateTransitionParams, slope SlopeParams) {
	b.transition = transition
	b.slope = slope
}

// Build assembles the ControlData for one tick. An empty trajectory yields a
// zeroed record flagged far-from-trajectory, so the state machine degrades
// to a safe state instead of acting on nothing.
func (b *ControlDataBuilder) Build(now time.Time, pose Pose, traj Trajectory, motion Motion) ControlData {
	dt := b.tickDT(now)

	nearestIdx, ok := traj.NearestIndex(pose)
	if !ok {
		return ControlData{
			IsFarFromTrajectory: true,
			Shift:               b.prevShift,
			CurrentMotion:       motion,
			DT:                  dt,
		}
	}

	transDev := pose.PlanarDistanceTo(traj.Points[nearestIdx].Pose)
	rotDev := traj.YawDeviation(pose, nearestIdx)
	isFar := transDev > b.transition.EmergencyStateTrajTransDev ||
		rotDev > b.transition.EmergencyStateTrajRotDev

	shift := b.shiftFor(traj.Points[nearestIdx].Vel)
	b.prevShift = shift

	stopDist, _ := traj.StopDistance(pose, nearestIdx)

	return ControlData{
		IsFarFromTrajectory: isFar,
		NearestIdx:          nearestIdx,
		CurrentMotion:       motion,
		Shift:               shift,
		StopDist:            stopDist,
		SlopeAngle:          b.slopeAngle(pose, traj, nearestIdx),
		DT:                  dt,
	}
}

// tickDT returns the elapsed time since the previous Build, 0 on the first.
func (b *ControlDataBuilder) tickDT(now time.Time) float64 {
	if !b.hasTicked {
		b.hasTicked = true
		b.prevTick = now
		return 0
	}
	dt := now.Sub(b.prevTick).Seconds()
	b.prevTick = now
	if dt < 0 {
		return 0
	}
	return dt
}

// shiftFor maps the target velocity sign to a travel direction, holding the
// previous direction at exactly zero.
func (b *ControlDataBuilder) shiftFor(targetVel float64) Shift {
	if targetVel > 0 {
		return ShiftForward
	}
	if targetVel < 0 {
		return ShiftReverse
	}
	return b.prevShift
}

// slopeAngle returns the low-pass-filtered road pitch, from the pose
// attitude or the trajectory's local incline depending on configuration.
// With slope compensation disabled the angle is pinned to zero.
func (b *ControlDataBuilder) slopeAngle(pose Pose, traj Trajectory, nearestIdx int) float64 {
	if !b.slope.Enable {
		return 0
	}
	raw := pose.Pitch
	if b.slope.UseTrajectoryForPitch {
		raw = traj.LocalPitch(nearestIdx, b.slope.PitchSpan)
	}
	if !isFinite(raw) {
		raw = b.lpfPitch.Value()
	}
	return b.lpfPitch.Filter(raw)
}

// BuildMotion combines the latest velocity sample with the regression-based
// acceleration estimate from the velocity history.
func BuildMotion(velHist *VelocityHistory) Motion {
	latest, ok := velHist.Latest()
	if !ok {
		return Motion{}
	}
	return Motion{Vel: latest.Value, Acc: velHist.EstimateAccel()}
}

// stoppedCondition reports whether the vehicle motion and stop distance
// qualify for the STOPPED state.
func stoppedCondition(data ControlData, p StateTransitionParams) bool {
	return math.Abs(data.CurrentMotion.Vel) <= p.StoppedStateEntryVel &&
		math.Abs(data.CurrentMotion.Acc) <= p.StoppedStateEntryAcc &&
		data.StopDist <= p.StoppedStateEntryDist &&
		data.StopDist >= -p.StoppedStateEntryDist
}
