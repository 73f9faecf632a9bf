package longitudinal

import (
	"fmt"
	"math"
)

// zeroVelEpsilon is the target-velocity magnitude below which a trajectory
// point counts as a stop point.
const zeroVelEpsilon = 1e-3

// TrajectoryPoint is one sample of the reference trajectory.
type TrajectoryPoint struct {
	Pose Pose    `json:"pose"`
	Vel  float64 `json:"vel"` // signed target velocity, m/s
	Acc  float64 `json:"acc"` // target acceleration, m/s²
}

// Trajectory is an ordered sequence of reference points. It is received as a
// whole from the planner and treated as read-only by the controller.
type Trajectory struct {
	Points []TrajectoryPoint `json:"points"`
}

// Empty reports whether the trajectory has no points.
func (t Trajectory) Empty() bool {
	return len(t.Points) == 0
}

// Validate rejects trajectories the controller cannot act on.
func (t Trajectory) Validate() error {
	for i, p := range t.Points {
		if !isFinite(p.Pose.X) || !isFinite(p.Pose.Y) || !isFinite(p.Vel) || !isFinite(p.Acc) {
			return fmt.Errorf("trajectory point %d contains a non-finite value", i)
		}
	}
	return nil
}

// NearestIndex returns the index of the point closest to pose in the XY
// plane. ok is false for an empty trajectory, in which case idx is 0.
func (t Trajectory) NearestIndex(pose Pose) (idx int, ok bool) {
	if t.Empty() {
		return 0, false
	}
	best := math.Inf(1)
	for i, p := range t.Points {
		d := pose.PlanarDistanceTo(p.Pose)
		if d < best {
			best = d
			idx = i
		}
	}
	return idx, true
}

// ArcLength returns the accumulated segment length from index a to index b
// (a <= b assumed; reversed arguments yield the negated length).
func (t Trajectory) ArcLength(a, b int) float64 {
	if a > b {
		return -t.ArcLength(b, a)
	}
	var dist float64
	for i := a; i < b && i+1 < len(t.Points); i++ {
		dist += t.Points[i].Pose.PlanarDistanceTo(t.Points[i+1].Pose)
	}
	return dist
}

// StopDistance returns the signed arclength from pose to the first stop
// point (target velocity near zero) at or after nearestIdx, positive while
// the vehicle is before it. When the trajectory carries no stop point the
// distance to its final point is returned, since the vehicle must not be
// commanded beyond the last known sample. ok is false for an empty
// trajectory.
func (t Trajectory) StopDistance(pose Pose, nearestIdx int) (float64, bool) {
	if t.Empty() || nearestIdx >= len(t.Points) {
		return 0, false
	}
	stopIdx := len(t.Points) - 1
	for i := nearestIdx; i < len(t.Points); i++ {
		if math.Abs(t.Points[i].Vel) < zeroVelEpsilon {
			stopIdx = i
			break
		}
	}
	// Signed offset of the vehicle from the nearest point, projected on the
	// local travel direction, so the distance shrinks smoothly between
	// samples instead of stepping.
	along := t.alongOffset(pose, nearestIdx)
	return t.ArcLength(nearestIdx, stopIdx) - along, true
}

// alongOffset projects the vehicle position onto the travel direction at
// nearestIdx and returns the signed longitudinal offset from that point.
func (t Trajectory) alongOffset(pose Pose, nearestIdx int) float64 {
	dirIdx := nearestIdx
	if dirIdx+1 >= len(t.Points) {
		dirIdx = len(t.Points) - 2
	}
	if dirIdx < 0 {
		return 0
	}
	p0 := t.Points[dirIdx].Pose
	p1 := t.Points[dirIdx+1].Pose
	seg := math.Hypot(p1.X-p0.X, p1.Y-p0.Y)
	if seg < 1e-6 {
		return 0
	}
	ref := t.Points[nearestIdx].Pose
	return ((pose.X-ref.X)*(p1.X-p0.X) + (pose.Y-ref.Y)*(p1.Y-p0.Y)) / seg
}

// LateralDeviation returns the absolute lateral offset of pose from the
// point at idx, measured against that point's heading.
func (t Trajectory) LateralDeviation(pose Pose, idx int) float64 {
	if t.Empty() || idx >= len(t.Points) {
		return 0
	}
	ref := t.Points[idx].Pose
	dx := pose.X - ref.X
	dy := pose.Y - ref.Y
	return math.Abs(-dx*math.Sin(ref.Yaw) + dy*math.Cos(ref.Yaw))
}

// YawDeviation returns the absolute heading error of pose against the point
// at idx, normalized to [0, pi].
func (t Trajectory) YawDeviation(pose Pose, idx int) float64 {
	if t.Empty() || idx >= len(t.Points) {
		return 0
	}
	d := pose.Yaw - t.Points[idx].Pose.Yaw
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d < -math.Pi {
		d += 2 * math.Pi
	}
	return math.Abs(d)
}

// Interpolate returns the target velocity and acceleration at the vehicle's
// projected arclength position, linearly interpolated between the two
// bracketing points. Past either end of the trajectory the boundary point is
// returned unchanged.
func (t Trajectory) Interpolate(pose Pose, nearestIdx int) TrajectoryPoint {
	if t.Empty() {
		return TrajectoryPoint{}
	}
	if len(t.Points) == 1 || nearestIdx >= len(t.Points) {
		return t.Points[min(nearestIdx, len(t.Points)-1)]
	}

	along := t.alongOffset(pose, nearestIdx)
	i0, i1 := nearestIdx, nearestIdx+1
	if along < 0 {
		i0, i1 = nearestIdx-1, nearestIdx
		if i0 < 0 {
			return t.Points[0]
		}
	}
	if i1 >= len(t.Points) {
		return t.Points[len(t.Points)-1]
	}

	seg := t.Points[i0].Pose.PlanarDistanceTo(t.Points[i1].Pose)
	if seg < 1e-6 {
		return t.Points[i0]
	}
	// Fraction of the bracket segment covered by the projected position.
	frac := along / seg
	if along < 0 {
		frac = 1.0 + along/seg
	}
	frac = clampFloat(frac, 0.0, 1.0)

	a, b := t.Points[i0], t.Points[i1]
	return TrajectoryPoint{
		Pose: Pose{
			X:     a.Pose.X + frac*(b.Pose.X-a.Pose.X),
			Y:     a.Pose.Y + frac*(b.Pose.Y-a.Pose.Y),
			Z:     a.Pose.Z + frac*(b.Pose.Z-a.Pose.Z),
			Yaw:   a.Pose.Yaw,
			Pitch: a.Pose.Pitch,
		},
		Vel: a.Vel + frac*(b.Vel-a.Vel),
		Acc: a.Acc + frac*(b.Acc-a.Acc),
	}
}

// LocalPitch estimates the road grade at idx from the trajectory geometry:
// the elevation change over at least minSpan of arclength ahead of idx,
// converted to a pitch angle (upward negative).
func (t Trajectory) LocalPitch(idx int, minSpan float64) float64 {
	if len(t.Points) < 2 {
		return 0
	}
	if idx >= len(t.Points)-1 {
		idx = len(t.Points) - 2
	}
	end := idx + 1
	dist := t.Points[idx].Pose.PlanarDistanceTo(t.Points[end].Pose)
	for end+1 < len(t.Points) && dist < minSpan {
		dist += t.Points[end].Pose.PlanarDistanceTo(t.Points[end+1].Pose)
		end++
	}
	if dist < 1e-6 {
		return 0
	}
	rise := t.Points[end].Pose.Z - t.Points[idx].Pose.Z
	return -math.Atan2(rise, dist)
}
