package main

import (
	"context"
	"fmt"
	"time"

	"go.einride.tech/can"

	"velocity-control-core/longitudinal"
	"velocity-control-core/utils"
)

// Frame names the runner expects in the CAN catalog.
const (
	frameVehicleState = "VEHICLE_STATE_1" // rx: vehicle_speed_mps
	frameVehiclePose  = "VEHICLE_POSE_1"  // rx: pos_x_m, pos_y_m
	frameVehicleAtt   = "VEHICLE_POSE_2"  // rx: pos_z_m, yaw_rad, pitch_rad
	frameControlCmd   = "LONG_CTRL_CMD"   // tx: accel/vel command
)

type RunnerConfig struct {
	Interface      string
	MapPath        string
	TrajectoryPath string
	TrajectoryAddr string
	TelemetryPath  string
}

// Runner wires the controller to its environment: CAN RX for vehicle state
// and pose, UDP for trajectory updates, a fixed-rate control ticker, CAN TX
// for the resulting command and an optional CSV telemetry sink.
type Runner struct {
	cfg  RunnerConfig
	log  *utils.Logger
	cmap *utils.CANMap
	ctrl *longitudinal.Controller

	writer utils.CANWriter
	reader utils.CANReader
	trajIn *TrajectorySource
	telem  *Telemetry

	cmdFrame *utils.FrameDef

	// Pose arrives split across two frames; position is held until the
	// attitude half completes it.
	partialPose longitudinal.Pose
	havePos     bool
}

func NewRunner(ctx context.Context, cfg RunnerConfig, ctrlCfg longitudinal.Config, log *utils.Logger) (*Runner, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}
	for _, name := range []string{frameVehicleState, frameVehiclePose, frameVehicleAtt} {
		if _, err := cmap.FrameByName(name); err != nil {
			return nil, fmt.Errorf("can map: %w", err)
		}
	}
	cmdFrame, err := cmap.FrameByName(frameControlCmd)
	if err != nil {
		return nil, fmt.Errorf("can map: %w", err)
	}

	ctrl, err := longitudinal.NewController(ctrlCfg)
	if err != nil {
		return nil, err
	}

	if cfg.TrajectoryPath != "" {
		traj, err := loadTrajectoryFile(cfg.TrajectoryPath)
		if err != nil {
			return nil, fmt.Errorf("initial trajectory: %w", err)
		}
		if err := ctrl.UpdateTrajectory(traj, time.Now()); err != nil {
			return nil, fmt.Errorf("initial trajectory: %w", err)
		}
		log.Info("Loaded initial trajectory: %d points from %s", len(traj.Points), cfg.TrajectoryPath)
	}

	writer, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return nil, err
	}
	reader, err := utils.NewSocketCANReader(ctx, cfg.Interface)
	if err != nil {
		writer.Close()
		return nil, err
	}

	r := &Runner{
		cfg:      cfg,
		log:      log,
		cmap:     cmap,
		ctrl:     ctrl,
		writer:   writer,
		reader:   reader,
		cmdFrame: cmdFrame,
	}

	if cfg.TrajectoryAddr != "" {
		r.trajIn, err = NewTrajectorySource(cfg.TrajectoryAddr, ctrl, log)
		if err != nil {
			r.Close()
			return nil, err
		}
	}
	if cfg.TelemetryPath != "" {
		r.telem, err = NewTelemetry(cfg.TelemetryPath)
		if err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) Close() {
	if r.trajIn != nil {
		_ = r.trajIn.Close()
	}
	if r.telem != nil {
		_ = r.telem.Close()
	}
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

func (r *Runner) Run(ctx context.Context) error {
	rate := r.ctrl.Config().ControlRateHz
	period := time.Duration(float64(time.Second) / rate)
	r.log.Info("Starting control loop: rate=%.1fHz iface=%s cmd=0x%X traj_udp=%q",
		rate, r.cfg.Interface, r.cmdFrame.ID, r.cfg.TrajectoryAddr)

	rxErr := make(chan error, 1)
	go func() {
		rxErr <- r.reader.ReceiveLoop(ctx, r.handleFrame)
	}()
	if r.trajIn != nil {
		go r.trajIn.Listen(ctx)
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var ticks uint64
	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping control loop after %d ticks", ticks)
			return ctx.Err()

		case err := <-rxErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A dead RX path means every future tick acts on stale data and
			// the controller will fail toward EMERGENCY; surface it instead.
			return fmt.Errorf("can rx: %w", err)

		case now := <-ticker.C:
			cmd, diag, publish := r.ctrl.Tick(now)
			ticks++

			if publish {
				if err := r.publish(ctx, cmd); err != nil {
					r.log.Critical("Transmit failed: %v", err)
					return err
				}
			}
			if r.telem != nil {
				if err := r.telem.Write(diag); err != nil {
					// Telemetry is best effort; keep controlling.
					r.log.Warn("Telemetry write failed: %v", err)
				}
			}
			if ticks%uint64(rate) == 0 {
				r.log.Debug("state=%s v=%.2f acc_cmd=%.3f stop_dist=%.2f slope=%.4f stale=%v",
					diag.State, diag.CurrentVel, cmd.Acc, diag.StopDist, diag.SlopeAngle, diag.Stale)
			}
		}
	}
}

// handleFrame decodes one received frame and routes it into the
// controller's latest-value slots. Runs on the RX goroutine.
func (r *Runner) handleFrame(frame can.Frame) {
	fd, err := r.cmap.FrameByID(uint32(frame.ID))
	if err != nil {
		return // not ours
	}
	values, err := r.cmap.DecodeFrame(frame)
	if err != nil {
		r.log.Error("Decode 0x%X failed: %v", uint32(frame.ID), err)
		return
	}
	now := time.Now()

	switch fd.Name {
	case frameVehicleState:
		r.ctrl.UpdateVelocity(values["vehicle_speed_mps"], now)

	case frameVehiclePose:
		r.partialPose.X = values["pos_x_m"]
		r.partialPose.Y = values["pos_y_m"]
		r.havePos = true

	case frameVehicleAtt:
		if !r.havePos {
			return
		}
		r.partialPose.Z = values["pos_z_m"]
		r.partialPose.Yaw = values["yaw_rad"]
		r.partialPose.Pitch = values["pitch_rad"]
		r.ctrl.UpdatePose(r.partialPose, now)
	}
}

// publish encodes the command into the TX frame and writes it to the bus.
func (r *Runner) publish(ctx context.Context, cmd longitudinal.Command) error {
	frame, err := r.cmap.EncodeFrame(frameControlCmd, map[string]float64{
		"accel_cmd_mps2": cmd.Acc,
		"vel_cmd_mps":    cmd.Vel,
		"control_state":  float64(cmd.State),
		"enable":         1,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", frameControlCmd, err)
	}
	return r.writer.WriteFrame(ctx, frame)
}
