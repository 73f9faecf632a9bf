package longitudinal

import (
	"fmt"
	"sync"
	"time"
)

// Command is the controller's per-tick output at the actuation boundary.
type Command struct {
	Motion
	State ControlState
	Stamp time.Time
}

// Controller is the longitudinal velocity controller. Velocity, pose and
// trajectory updates arrive asynchronously through the Update methods and
// overwrite latest-value slots; Tick snapshots those slots under the lock,
// then runs the full control pipeline lock-free:
//
//	ControlData build -> state transition -> per-state command ->
//	accel/jerk limiting and slope compensation -> command history.
//
// Tick is the only mutator of control state, filters and the history
// buffers, and must be called from a single goroutine.
type Controller struct {
	mu sync.Mutex
	// Guarded by mu: the latest-value slots and the pending config swap.
	latestPose Pose
	poseStamp  time.Time
	hasPose    bool
	latestTraj Trajectory
	trajStamp  time.Time
	hasTraj    bool
	velHist    *VelocityHistory
	velStamp   time.Time
	hasVel     bool
	pendingCfg *Config

	// Tick-owned state below; never touched by the update callbacks.
	cfg        Config
	state      ControlState
	builder    *ControlDataBuilder
	drive      *DriveController
	smoothStop *SmoothStopController
	filter     *CommandFilter
	cmdHist    *CommandHistory

	prevCtrlCmd    Motion // after slope compensation, as published
	prevRawCtrlCmd Motion // before slope compensation, feeds jerk limit and history
}

// NewController validates the configuration and builds a controller in the
// fail-safe STOPPED state.
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}
	c := &Controller{
		cfg:        cfg,
		state:      StateStopped,
		builder:    NewControlDataBuilder(cfg.StateTransition, cfg.Slope),
		drive:      NewDriveController(cfg.Drive, secs(cfg.DelayCompensationTime)),
		smoothStop: NewSmoothStopController(cfg.SmoothStop),
		filter:     NewCommandFilter(cfg.Limits, cfg.Slope, cfg.AccelLPFGain),
		cmdHist:    NewCommandHistory(secs(cfg.DelayCompensationTime)),
		velHist:    NewVelocityHistory(secs(cfg.VelHistoryWindow)),
	}
	c.prevRawCtrlCmd = Motion{Vel: cfg.Stopped.Vel, Acc: cfg.Stopped.Acc}
	c.prevCtrlCmd = c.prevRawCtrlCmd
	return c, nil
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Reset returns the controller to its initial STOPPED state, dropping all
// buffered inputs and filter memory. Meant for reuse after the vehicle has
// been repositioned, e.g. between bench scenarios; a live system would
// normally just build a fresh controller.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.hasPose = false
	c.hasTraj = false
	c.hasVel = false
	c.latestTraj = Trajectory{}
	c.velHist.Reset()
	c.pendingCfg = nil
	c.mu.Unlock()

	c.state = StateStopped
	c.builder.Reset()
	c.drive.Reset()
	c.smoothStop.Reset()
	c.cmdHist.Reset()
	c.prevRawCtrlCmd = Motion{Vel: c.cfg.Stopped.Vel, Acc: c.cfg.Stopped.Acc}
	c.prevCtrlCmd = c.prevRawCtrlCmd
	c.filter.ResetSmoothing(c.prevRawCtrlCmd.Acc)
}

// State returns the control state after the most recent tick.
func (c *Controller) State() ControlState {
	return c.state
}

// Config returns the configuration in effect, including a staged swap that
// has not yet been picked up by a tick.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingCfg != nil {
		return *c.pendingCfg
	}
	return c.cfg
}

// UpdateVelocity records a velocity measurement. Last write wins; the
// history keeps only the trailing estimation window.
func (c *Controller) UpdateVelocity(vel float64, stamp time.Time) {
	if !isFinite(vel) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.velHist.Push(stamp, vel)
	c.velStamp = stamp
	c.hasVel = true
}

// UpdatePose records the current pose. Last write wins.
func (c *Controller) UpdatePose(pose Pose, stamp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latestPose = pose
	c.poseStamp = stamp
	c.hasPose = true
}

// UpdateTrajectory replaces the reference trajectory. Last write wins; an
// invalid trajectory is rejected and the previous one stays in effect.
func (c *Controller) UpdateTrajectory(traj Trajectory, stamp time.Time) error {
	if err := traj.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latestTraj = traj
	c.trajStamp = stamp
	c.hasTraj = true
	return nil
}

// UpdateConfig stages a validated configuration to take effect at the start
// of the next tick, so a live retune can never race an in-progress tick.
func (c *Controller) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingCfg = &cfg
	return nil
}

// snapshot copies the latest-value slots atomically so the tick never reads
// a torn pose/trajectory pair, and applies any staged config.
func (c *Controller) snapshot() (pose Pose, traj Trajectory, motion Motion, velStamp, trajStamp time.Time, haveInputs bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingCfg != nil {
		c.applyConfigLocked(*c.pendingCfg)
		c.pendingCfg = nil
	}
	motion = BuildMotion(c.velHist)
	return c.latestPose, c.latestTraj, motion, c.velStamp, c.trajStamp, c.hasPose && c.hasTraj && c.hasVel
}

func (c *Controller) applyConfigLocked(cfg Config) {
	c.cfg = cfg
	c.builder.SetParams(cfg.StateTransition, cfg.Slope)
	c.drive.SetParams(cfg.Drive, secs(cfg.DelayCompensationTime))
	c.smoothStop.SetParams(cfg.SmoothStop)
	c.filter.SetParams(cfg.Limits, cfg.Slope)
	c.cmdHist.window = secs(cfg.DelayCompensationTime)
	c.velHist.window = secs(cfg.VelHistoryWindow)
}

// Tick runs one control cycle. It always returns a command; publish reports
// whether it should go to the actuator (false only before the first
// trajectory/velocity, unless the configuration asks for the stopped
// default to be published anyway).
func (c *Controller) Tick(now time.Time) (Command, Diagnostics, bool) {
	pose, traj, motion, velStamp, trajStamp, haveInputs := c.snapshot()

	data := c.builder.Build(now, pose, traj, motion)

	diag := Diagnostics{
		Stamp:      now,
		DT:         data.DT,
		NearestIdx: data.NearestIdx,
		Shift:      data.Shift,
		StopDist:   data.StopDist,
		SlopeAngle: data.SlopeAngle,
		IsFar:      data.IsFarFromTrajectory,
		CurrentVel: data.CurrentMotion.Vel,
		CurrentAcc: data.CurrentMotion.Acc,
	}

	if !haveInputs || traj.Empty() {
		// Nothing to track: hold the fail-safe STOPPED default and do not
		// extrapolate past data. Not an error, the planner may simply not
		// have produced anything yet.
		c.state = StateStopped
		cmd := c.finishTick(Motion{Vel: c.cfg.Stopped.Vel, Acc: c.cfg.Stopped.Acc}, data, now, &diag)
		diag.State = c.state
		return cmd, diag, c.cfg.PublishStoppedBeforeTraj
	}

	// Stale inputs are treated exactly like a lost trajectory: fail safe,
	// never act on old data.
	staleness := secs(c.cfg.StalenessTimeout)
	if now.Sub(velStamp) > staleness || now.Sub(trajStamp) > staleness {
		data.IsFarFromTrajectory = true
		diag.Stale = true
		diag.IsFar = true
	}

	prevState := c.state
	c.state = NextState(prevState, data, c.cfg.StateTransition, StateMachineFlags{
		EnableSmoothStop:         c.cfg.EnableSmoothStop,
		EnableOvershootEmergency: c.cfg.EnableOvershootEmergency,
	})
	c.onTransition(prevState, c.state, now, data)
	diag.State = c.state

	raw := c.rawCommand(now, pose, traj, data, &diag)
	cmd := c.finishTick(raw, data, now, &diag)
	return cmd, diag, true
}

// onTransition resets per-state sub-controllers on entry/exit so continuity
// is seeded from the live command, not a stale default.
func (c *Controller) onTransition(prev, next ControlState, now time.Time, data ControlData) {
	if prev == next {
		return
	}
	if next == StateStopping {
		// Seed the stop profile from the last commanded motion so the
		// hand-off is jerk-continuous.
		pred := c.cmdHist.PredictVelocity(data.CurrentMotion, now, secs(c.cfg.DelayCompensationTime))
		c.smoothStop.Init(pred, c.prevRawCtrlCmd.Acc)
	}
	if prev == StateStopping {
		c.smoothStop.Reset()
	}
	if prev == StateDrive {
		c.drive.Reset()
	}
}

// rawCommand selects the per-state command generator. All four share the
// same contract: ControlData in, raw Motion out, filtering applied later.
func (c *Controller) rawCommand(now time.Time, pose Pose, traj Trajectory, data ControlData, diag *Diagnostics) Motion {
	switch c.state {
	case StateDrive:
		cmd, d := c.drive.Command(now, pose, traj, data, c.cmdHist)
		diag.TargetVel = d.TargetVel
		diag.TargetAcc = d.TargetAcc
		diag.PredictedVel = d.PredictedVel
		diag.VelError = d.VelError
		diag.PID = d.PID
		diag.BrakeKeeping = d.BrakeKeeping
		return cmd

	case StateStopping:
		acc := c.smoothStop.Command(now, data.StopDist, data.CurrentMotion.Vel, data.CurrentMotion.Acc)
		diag.SmoothStopPhase = c.smoothStop.Phase()
		return Motion{Vel: 0, Acc: acc}

	case StateEmergency:
		return c.emergencyCommand(data.DT)

	default: // StateStopped
		return c.stoppedCommand(data.DT)
	}
}

// emergencyCommand ramps toward the configured emergency deceleration under
// the emergency jerk bound, open loop: the trajectory may no longer be
// trustworthy, so no feedback is used.
func (c *Controller) emergencyCommand(dt float64) Motion {
	p := c.cfg.Emergency
	acc := applyDiffLimit(p.Acc, c.prevRawCtrlCmd.Acc, dt, p.Jerk, -p.Jerk)
	return Motion{Vel: p.Vel, Acc: acc}
}

// stoppedCommand holds the configured stopped target, ramped under the
// stopped jerk bound so entering STOPPED is not itself a jerk violation.
func (c *Controller) stoppedCommand(dt float64) Motion {
	p := c.cfg.Stopped
	acc := applyDiffLimit(p.Acc, c.prevRawCtrlCmd.Acc, dt, p.Jerk, -p.Jerk)
	return Motion{Vel: p.Vel, Acc: acc}
}

// finishTick runs the shared filter chain, guards against non-finite
// output, stores the command history entry and returns the stamped command.
func (c *Controller) finishTick(raw Motion, data ControlData, now time.Time, diag *Diagnostics) Command {
	filtered, fdiag := c.filter.Apply(raw.Acc, data, c.prevRawCtrlCmd.Acc, c.prevCtrlCmd.Acc)
	diag.RawAcc = fdiag.RawAcc
	diag.SlopeComp = fdiag.SlopeComp

	// A NaN or Inf anywhere in the pipeline must never reach the actuator;
	// fall back to the previous published command.
	if !isFinite(filtered) || !isFinite(raw.Vel) {
		filtered = c.prevCtrlCmd.Acc
		raw.Vel = c.prevCtrlCmd.Vel
		fdiag.Smoothed = c.prevRawCtrlCmd.Acc
		diag.NaNGuarded = true
	}
	diag.FilteredAcc = filtered

	c.prevRawCtrlCmd = Motion{Vel: raw.Vel, Acc: fdiag.Smoothed}
	c.prevCtrlCmd = Motion{Vel: raw.Vel, Acc: filtered}
	c.cmdHist.Push(now, fdiag.Smoothed)

	return Command{
		Motion: Motion{Vel: raw.Vel, Acc: filtered},
		State:  c.state,
		Stamp:  now,
	}
}
