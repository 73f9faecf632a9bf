package longitudinal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineTrajectory builds a straight trajectory along +X with one point per
// meter and the given target velocities.
func lineTrajectory(vels ...float64) Trajectory {
	pts := make([]TrajectoryPoint, len(vels))
	for i, v := range vels {
		pts[i] = TrajectoryPoint{Pose: Pose{X: float64(i)}, Vel: v}
	}
	return Trajectory{Points: pts}
}

func TestNearestIndex(t *testing.T) {
	traj := lineTrajectory(1, 1, 1, 1, 1)

	idx, ok := traj.NearestIndex(Pose{X: 2.2, Y: 0.5})
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	idx, ok = traj.NearestIndex(Pose{X: -10})
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestNearestIndexEmpty(t *testing.T) {
	idx, ok := Trajectory{}.NearestIndex(Pose{})
	assert.False(t, ok)
	assert.Equal(t, 0, idx)
}

func TestArcLength(t *testing.T) {
	traj := lineTrajectory(1, 1, 1, 1)
	assert.InDelta(t, 3.0, traj.ArcLength(0, 3), 1e-12)
	assert.InDelta(t, -3.0, traj.ArcLength(3, 0), 1e-12)
	assert.Zero(t, traj.ArcLength(2, 2))
}

func TestStopDistanceBeforeStopLine(t *testing.T) {
	// Stop point at x=3.
	traj := lineTrajectory(2, 2, 2, 0, 0)
	dist, ok := traj.StopDistance(Pose{X: 0.5}, 0)
	require.True(t, ok)
	assert.InDelta(t, 2.5, dist, 1e-9)
}

func TestStopDistancePastStopLine(t *testing.T) {
	traj := lineTrajectory(2, 2, 2, 0, 0)
	dist, ok := traj.StopDistance(Pose{X: 3.4}, 3)
	require.True(t, ok)
	assert.InDelta(t, -0.4, dist, 1e-9)
}

func TestStopDistanceNoStopPointUsesLastPoint(t *testing.T) {
	traj := lineTrajectory(2, 2, 2, 2)
	dist, ok := traj.StopDistance(Pose{X: 1.0}, 1)
	require.True(t, ok)
	assert.InDelta(t, 2.0, dist, 1e-9)
}

func TestInterpolateBetweenPoints(t *testing.T) {
	traj := lineTrajectory(0, 2, 4)
	traj.Points[1].Acc = 1.0
	traj.Points[2].Acc = 2.0

	p := traj.Interpolate(Pose{X: 1.5}, 1)
	assert.InDelta(t, 3.0, p.Vel, 1e-9)
	assert.InDelta(t, 1.5, p.Acc, 1e-9)
	assert.InDelta(t, 1.5, p.Pose.X, 1e-9)
}

func TestInterpolateBeyondEnds(t *testing.T) {
	traj := lineTrajectory(1, 2, 3)
	assert.InDelta(t, 3.0, traj.Interpolate(Pose{X: 99}, 2).Vel, 1e-9)
	assert.InDelta(t, 1.0, traj.Interpolate(Pose{X: -99}, 0).Vel, 1e-9)
}

func TestLateralAndYawDeviation(t *testing.T) {
	traj := lineTrajectory(1, 1, 1)

	assert.InDelta(t, 2.0, traj.LateralDeviation(Pose{X: 1, Y: 2}, 1), 1e-9)
	assert.InDelta(t, 0.3, traj.YawDeviation(Pose{X: 1, Yaw: 0.3}, 1), 1e-9)

	// Wraparound: headings pi and -pi are the same direction.
	traj.Points[1].Pose.Yaw = math.Pi
	assert.InDelta(t, 0.0, traj.YawDeviation(Pose{X: 1, Yaw: -math.Pi}, 1), 1e-9)
}

func TestLocalPitchUphillIsNegative(t *testing.T) {
	traj := lineTrajectory(1, 1, 1, 1)
	for i := range traj.Points {
		traj.Points[i].Pose.Z = 0.1 * float64(i) // rising road
	}
	pitch := traj.LocalPitch(0, 2.0)
	assert.Negative(t, pitch)
	assert.InDelta(t, -math.Atan2(0.2, 2.0), pitch, 1e-9)
}

func TestValidateRejectsNonFinite(t *testing.T) {
	traj := lineTrajectory(1, 2)
	traj.Points[1].Vel = math.NaN()
	assert.Error(t, traj.Validate())
	assert.NoError(t, lineTrajectory(1, 2).Validate())
}
