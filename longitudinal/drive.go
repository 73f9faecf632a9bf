package longitudinal

import (
	"math"
	"time"
)

// DriveController produces the DRIVE-state acceleration command:
// trajectory feedforward plus PID feedback on the delay-compensated
// velocity error, with brake keeping near a stop line.
type DriveController struct {
	params DriveParams
	delay  time.Duration

	pid         *PIDController
	lpfVelError *LowpassFilter1D
}

// DriveDiagnostics exposes the intermediate values of one DRIVE update.
type DriveDiagnostics struct {
	TargetVel    float64
	TargetAcc    float64
	PredictedVel float64
	VelError     float64
	Feedback     float64
	PID          PIDContributions
	BrakeKeeping bool
}

// NewDriveController creates the DRIVE-state command generator.
func NewDriveController(params DriveParams, delay time.Duration) *DriveController {
	return &DriveController{
		params:      params,
		delay:       delay,
		pid:         NewPIDController(params.Gains, params.Limits),
		lpfVelError: NewLowpassFilter1D(params.VelErrorLPFGain),
	}
}

// Reset clears the feedback state, used when leaving DRIVE so a later
// re-entry does not inherit a stale integral.
func (d *DriveController) Reset() {
	d.pid.Reset()
	d.lpfVelError = NewLowpassFilter1D(d.params.VelErrorLPFGain)
}

// SetParams swaps in new feedback parameters between ticks. Gain changes
// keep the accumulated integral; limit changes apply from the next update.
func (d *DriveController) SetParams(params DriveParams, delay time.Duration) {
	d.params = params
	d.delay = delay
	d.pid.gains = params.Gains
	d.pid.limits = params.Limits
}

// Command computes the raw DRIVE command for one tick. The feedback input is
// the velocity the vehicle is predicted to have once this command takes
// effect, reconstructed from the recent command history; the trajectory's
// interpolated acceleration is the feedforward term.
func (d *DriveController) Command(now time.Time, pose Pose, traj Trajectory, data ControlData, hist *CommandHistory) (Motion, DriveDiagnostics) {
	target := traj.Interpolate(pose, data.NearestIdx)

	predVel := hist.PredictVelocity(data.CurrentMotion, now, d.delay)
	velError := d.lpfVelError.Filter(target.Vel - predVel)

	enableIntegration := math.Abs(data.CurrentMotion.Vel) >= d.params.CurrentVelThresholdPIDIntegrate
	feedback, contrib := d.pid.Update(velError, data.DT, enableIntegration)

	cmd := Motion{Vel: target.Vel, Acc: target.Acc + feedback}

	diag := DriveDiagnostics{
		TargetVel:    target.Vel,
		TargetAcc:    target.Acc,
		PredictedVel: predVel,
		VelError:     velError,
		Feedback:     feedback,
		PID:          contrib,
	}

	// Brake keeping: while creeping up to a nearby stop line, never command
	// a value above the configured negative hold acceleration.
	if d.params.EnableBrakeKeepingBeforeStop &&
		data.StopDist <= d.params.BrakeKeepingDist &&
		math.Abs(data.CurrentMotion.Vel) <= d.params.BrakeKeepingVel {
		if cmd.Acc > d.params.BrakeKeepingAcc {
			cmd.Acc = d.params.BrakeKeepingAcc
			diag.BrakeKeeping = true
		}
	}

	return cmd, diag
}
