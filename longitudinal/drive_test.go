package longitudinal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var driveBase = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testDriveParams() DriveParams {
	return DriveParams{
		Gains: PIDGains{Kp: 1.0, Ki: 0.5, Kd: 0.0},
		Limits: PIDLimits{
			MaxOut: 10, MinOut: -10,
			MaxP: 10, MinP: -10,
			MaxI: 5, MinI: -5,
		},
		CurrentVelThresholdPIDIntegrate: 0.5,
		VelErrorLPFGain:                 0.0,
		EnableBrakeKeepingBeforeStop:    true,
		BrakeKeepingAcc:                 -0.2,
		BrakeKeepingVel:                 0.3,
		BrakeKeepingDist:                3.0,
	}
}

func driveTraj(vel, acc float64) Trajectory {
	traj := straightTrajectory(10, 1.0, vel)
	for i := range traj.Points {
		traj.Points[i].Acc = acc
	}
	return traj
}

func TestDriveFeedforwardPlusFeedback(t *testing.T) {
	d := NewDriveController(testDriveParams(), 170*time.Millisecond)
	traj := driveTraj(5.0, 0.5)
	data := ControlData{CurrentMotion: Motion{Vel: 3.0}, DT: 0.1, StopDist: 100, NearestIdx: 2}

	cmd, diag := d.Command(driveBase, Pose{X: 2.0}, traj, data, NewCommandHistory(time.Second))

	assert.InDelta(t, 5.0, cmd.Vel, 1e-9)
	assert.InDelta(t, 5.0, diag.TargetVel, 1e-9)
	assert.InDelta(t, 0.5, diag.TargetAcc, 1e-9)
	// Empty history: predicted velocity is just the current one.
	assert.InDelta(t, 3.0, diag.PredictedVel, 1e-9)
	assert.InDelta(t, 2.0, diag.VelError, 1e-9)
	// Feedforward 0.5 + P term 2.0 + I term 0.5*2.0*0.1.
	assert.InDelta(t, 2.6, cmd.Acc, 1e-9)
	assert.False(t, diag.BrakeKeeping)
}

func TestDriveDelayCompensationShrinksError(t *testing.T) {
	d := NewDriveController(testDriveParams(), 170*time.Millisecond)
	traj := driveTraj(5.0, 0.0)
	data := ControlData{CurrentMotion: Motion{Vel: 3.0}, DT: 0.1, StopDist: 100, NearestIdx: 2}

	// 2 m/s² has been commanded for the last 100 ms and is still in flight.
	hist := NewCommandHistory(time.Second)
	hist.Push(driveBase.Add(-100*time.Millisecond), 2.0)

	_, diag := d.Command(driveBase, Pose{X: 2.0}, traj, data, hist)
	assert.InDelta(t, 3.2, diag.PredictedVel, 1e-9)
	assert.InDelta(t, 1.8, diag.VelError, 1e-9)
}

func TestDriveBrakeKeepingClampsNearStop(t *testing.T) {
	d := NewDriveController(testDriveParams(), 170*time.Millisecond)
	traj := driveTraj(5.0, 0.0)
	// Creeping at a stop line: the feedback alone would push forward.
	data := ControlData{CurrentMotion: Motion{Vel: 0.2}, DT: 0.1, StopDist: 1.0, NearestIdx: 2}

	cmd, diag := d.Command(driveBase, Pose{X: 2.0}, traj, data, NewCommandHistory(time.Second))
	assert.InDelta(t, -0.2, cmd.Acc, 1e-9)
	assert.True(t, diag.BrakeKeeping)

	// Same motion far from the stop line: no clamp.
	data.StopDist = 50.0
	cmd, diag = d.Command(driveBase, Pose{X: 2.0}, traj, data, NewCommandHistory(time.Second))
	assert.Greater(t, cmd.Acc, 0.0)
	assert.False(t, diag.BrakeKeeping)
}

func TestDriveBrakeKeepingDisabled(t *testing.T) {
	params := testDriveParams()
	params.EnableBrakeKeepingBeforeStop = false
	d := NewDriveController(params, 170*time.Millisecond)
	traj := driveTraj(5.0, 0.0)
	data := ControlData{CurrentMotion: Motion{Vel: 0.2}, DT: 0.1, StopDist: 1.0, NearestIdx: 2}

	cmd, diag := d.Command(driveBase, Pose{X: 2.0}, traj, data, NewCommandHistory(time.Second))
	assert.Greater(t, cmd.Acc, 0.0)
	assert.False(t, diag.BrakeKeeping)
}

func TestDriveIntegrationGatedBelowThreshold(t *testing.T) {
	d := NewDriveController(testDriveParams(), 170*time.Millisecond)
	traj := driveTraj(5.0, 0.0)
	// Near standstill, below the integrate threshold.
	data := ControlData{CurrentMotion: Motion{Vel: 0.1}, DT: 0.1, StopDist: 100, NearestIdx: 2}

	_, diag := d.Command(driveBase, Pose{X: 2.0}, traj, data, NewCommandHistory(time.Second))
	assert.Equal(t, 0.0, diag.PID.I)
}

func TestDriveResetClearsIntegral(t *testing.T) {
	d := NewDriveController(testDriveParams(), 170*time.Millisecond)
	traj := driveTraj(5.0, 0.0)
	data := ControlData{CurrentMotion: Motion{Vel: 3.0}, DT: 0.1, StopDist: 100, NearestIdx: 2}

	_, diag := d.Command(driveBase, Pose{X: 2.0}, traj, data, NewCommandHistory(time.Second))
	assert.NotEqual(t, 0.0, diag.PID.I)

	d.Reset()
	data.DT = 0 // no fresh accumulation on this update
	_, diag = d.Command(driveBase, Pose{X: 2.0}, traj, data, NewCommandHistory(time.Second))
	assert.Equal(t, 0.0, diag.PID.I)
}
