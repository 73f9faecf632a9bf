package longitudinal

import (
	"encoding/json"
	"fmt"
	"os"
)

// StateTransitionParams are the thresholds driving the control state
// machine.
type StateTransitionParams struct {
	// DRIVE <-> STOPPING hysteresis band.
	DriveStateStopDist       float64 `json:"drive_state_stop_dist"`
	DriveStateOffsetStopDist float64 `json:"drive_state_offset_stop_dist"`
	// STOPPED entry.
	StoppedStateEntryVel  float64 `json:"stopped_state_entry_vel"`
	StoppedStateEntryAcc  float64 `json:"stopped_state_entry_acc"`
	StoppedStateEntryDist float64 `json:"stopped_state_entry_dist"`
	// EMERGENCY entry.
	EmergencyStateOvershootStopDist float64 `json:"emergency_state_overshoot_stop_dist"`
	EmergencyStateTrajTransDev      float64 `json:"emergency_state_traj_trans_dev"`
	EmergencyStateTrajRotDev        float64 `json:"emergency_state_traj_rot_dev"`
}

// TargetMotionParams is a fixed {velocity, acceleration, jerk} target used
// by the STOPPED and EMERGENCY states.
type TargetMotionParams struct {
	Vel  float64 `json:"vel"`
	Acc  float64 `json:"acc"`
	Jerk float64 `json:"jerk"`
}

// AccelLimits bound the published command and its rate of change.
type AccelLimits struct {
	MaxAcc  float64 `json:"max_acc"`
	MinAcc  float64 `json:"min_acc"`
	MaxJerk float64 `json:"max_jerk"`
	MinJerk float64 `json:"min_jerk"`
}

// SlopeParams configure road-grade compensation.
type SlopeParams struct {
	Enable                bool    `json:"enable"`
	UseTrajectoryForPitch bool    `json:"use_trajectory_for_pitch"`
	PitchSpan             float64 `json:"pitch_span"` // arclength used for the trajectory pitch estimate, m
	LPFGain               float64 `json:"lpf_gain"`
	MaxPitchRad           float64 `json:"max_pitch_rad"`
	MinPitchRad           float64 `json:"min_pitch_rad"`
}

// SmoothStopParams shape the STOPPING deceleration ladder.
type SmoothStopParams struct {
	MaxStrongAcc   float64 `json:"max_strong_acc"`
	MinStrongAcc   float64 `json:"min_strong_acc"`
	WeakAcc        float64 `json:"weak_acc"`
	WeakStopAcc    float64 `json:"weak_stop_acc"`
	StrongStopAcc  float64 `json:"strong_stop_acc"`
	MinFastVel     float64 `json:"min_fast_vel"`
	MinRunningVel  float64 `json:"min_running_vel"`
	MinRunningAcc  float64 `json:"min_running_acc"`
	WeakStopTime   float64 `json:"weak_stop_time"`
	WeakStopDist   float64 `json:"weak_stop_dist"`
	StrongStopDist float64 `json:"strong_stop_dist"`
}

// DriveParams configure the DRIVE feedback law.
type DriveParams struct {
	Gains  PIDGains  `json:"pid_gains"`
	Limits PIDLimits `json:"pid_limits"`
	// Integral accumulates only above this speed, against windup while
	// nearly stationary.
	CurrentVelThresholdPIDIntegrate float64 `json:"current_vel_threshold_pid_integrate"`
	VelErrorLPFGain                 float64 `json:"vel_error_lpf_gain"`
	EnableBrakeKeepingBeforeStop    bool    `json:"enable_brake_keeping_before_stop"`
	BrakeKeepingAcc                 float64 `json:"brake_keeping_acc"`
	BrakeKeepingVel                 float64 `json:"brake_keeping_vel"`
	BrakeKeepingDist                float64 `json:"brake_keeping_dist"`
}

// Config is the complete controller configuration, loaded once at startup
// and optionally swapped live between ticks.
type Config struct {
	ControlRateHz         float64 `json:"control_rate_hz"`
	DelayCompensationTime float64 `json:"delay_compensation_time"` // s
	VelHistoryWindow      float64 `json:"vel_history_window"`      // s
	StalenessTimeout      float64 `json:"staleness_timeout"`       // s
	AccelLPFGain          float64 `json:"accel_lpf_gain"`

	EnableSmoothStop         bool `json:"enable_smooth_stop"`
	EnableOvershootEmergency bool `json:"enable_overshoot_emergency"`
	PublishStoppedBeforeTraj bool `json:"publish_stopped_before_trajectory"`

	StateTransition StateTransitionParams `json:"state_transition"`
	Drive           DriveParams           `json:"drive"`
	SmoothStop      SmoothStopParams      `json:"smooth_stop"`
	Stopped         TargetMotionParams    `json:"stopped"`
	Emergency       TargetMotionParams    `json:"emergency"`
	Limits          AccelLimits           `json:"limits"`
	Slope           SlopeParams           `json:"slope"`
}

// DefaultConfig returns a conservative configuration suitable for a low
// speed vehicle. Field values can be overridden from a JSON file.
func DefaultConfig() Config {
	return Config{
		ControlRateHz:         30.0,
		DelayCompensationTime: 0.17,
		VelHistoryWindow:      0.5,
		StalenessTimeout:      0.5,
		AccelLPFGain:          0.2,

		EnableSmoothStop:         true,
		EnableOvershootEmergency: true,

		StateTransition: StateTransitionParams{
			DriveStateStopDist:              0.5,
			DriveStateOffsetStopDist:        1.0,
			StoppedStateEntryVel:            0.2,
			StoppedStateEntryAcc:            0.5,
			StoppedStateEntryDist:           0.5,
			EmergencyStateOvershootStopDist: 1.5,
			EmergencyStateTrajTransDev:      3.0,
			EmergencyStateTrajRotDev:        0.7,
		},
		Drive: DriveParams{
			Gains: PIDGains{Kp: 1.0, Ki: 0.1, Kd: 0.0},
			Limits: PIDLimits{
				MaxOut: 3.0, MinOut: -5.0,
				MaxP: 3.0, MinP: -3.0,
				MaxI: 0.3, MinI: -0.3,
				MaxD: 0.0, MinD: -0.0,
			},
			CurrentVelThresholdPIDIntegrate: 0.5,
			VelErrorLPFGain:                 0.9,
			EnableBrakeKeepingBeforeStop:    true,
			BrakeKeepingAcc:                 -0.2,
			BrakeKeepingVel:                 0.3,
			BrakeKeepingDist:                3.0,
		},
		SmoothStop: SmoothStopParams{
			MaxStrongAcc:   -0.5,
			MinStrongAcc:   -1.0,
			WeakAcc:        -0.3,
			WeakStopAcc:    -0.8,
			StrongStopAcc:  -3.4,
			MinFastVel:     0.5,
			MinRunningVel:  0.01,
			MinRunningAcc:  0.01,
			WeakStopTime:   0.8,
			WeakStopDist:   -0.3,
			StrongStopDist: -0.5,
		},
		Stopped:   TargetMotionParams{Vel: 0.0, Acc: -2.0, Jerk: -5.0},
		Emergency: TargetMotionParams{Vel: 0.0, Acc: -5.0, Jerk: -3.0},
		Limits: AccelLimits{
			MaxAcc:  3.0,
			MinAcc:  -5.0,
			MaxJerk: 2.0,
			MinJerk: -5.0,
		},
		Slope: SlopeParams{
			Enable:                true,
			UseTrajectoryForPitch: false,
			PitchSpan:             2.7,
			LPFGain:               0.95,
			MaxPitchRad:           0.1,
			MinPitchRad:           -0.1,
		},
	}
}

// Validate rejects inconsistent configurations at load time so the tick
// never has to.
func (c Config) Validate() error {
	if c.ControlRateHz <= 0 {
		return fmt.Errorf("control_rate_hz must be positive, got %f", c.ControlRateHz)
	}
	if c.DelayCompensationTime < 0 {
		return fmt.Errorf("delay_compensation_time must be non-negative, got %f", c.DelayCompensationTime)
	}
	if c.VelHistoryWindow <= 0 {
		return fmt.Errorf("vel_history_window must be positive, got %f", c.VelHistoryWindow)
	}
	if c.StalenessTimeout <= 0 {
		return fmt.Errorf("staleness_timeout must be positive, got %f", c.StalenessTimeout)
	}
	if c.Limits.MinAcc > c.Limits.MaxAcc {
		return fmt.Errorf("min_acc %f exceeds max_acc %f", c.Limits.MinAcc, c.Limits.MaxAcc)
	}
	if c.Limits.MinJerk > c.Limits.MaxJerk {
		return fmt.Errorf("min_jerk %f exceeds max_jerk %f", c.Limits.MinJerk, c.Limits.MaxJerk)
	}
	if c.Limits.MaxJerk < 0 || c.Limits.MinJerk > 0 {
		return fmt.Errorf("jerk limits [%f, %f] must bracket zero", c.Limits.MinJerk, c.Limits.MaxJerk)
	}
	if c.Slope.MinPitchRad > c.Slope.MaxPitchRad {
		return fmt.Errorf("min_pitch_rad %f exceeds max_pitch_rad %f", c.Slope.MinPitchRad, c.Slope.MaxPitchRad)
	}
	for name, g := range map[string]float64{
		"accel_lpf_gain":     c.AccelLPFGain,
		"vel_error_lpf_gain": c.Drive.VelErrorLPFGain,
		"slope.lpf_gain":     c.Slope.LPFGain,
	} {
		if g < 0 || g >= 1 {
			return fmt.Errorf("%s must be in [0, 1), got %f", name, g)
		}
	}
	d := c.Drive
	if d.Gains.Kp < 0 || d.Gains.Ki < 0 || d.Gains.Kd < 0 {
		return fmt.Errorf("pid gains must be non-negative")
	}
	if d.Limits.MinOut > d.Limits.MaxOut {
		return fmt.Errorf("pid min_out %f exceeds max_out %f", d.Limits.MinOut, d.Limits.MaxOut)
	}
	if d.EnableBrakeKeepingBeforeStop && d.BrakeKeepingAcc >= 0 {
		return fmt.Errorf("brake_keeping_acc must be negative, got %f", d.BrakeKeepingAcc)
	}
	st := c.StateTransition
	if st.DriveStateOffsetStopDist < 0 {
		return fmt.Errorf("drive_state_offset_stop_dist must be non-negative, got %f", st.DriveStateOffsetStopDist)
	}
	if st.StoppedStateEntryVel < 0 || st.StoppedStateEntryAcc < 0 || st.StoppedStateEntryDist < 0 {
		return fmt.Errorf("stopped state entry thresholds must be non-negative")
	}
	if st.EmergencyStateOvershootStopDist < 0 {
		return fmt.Errorf("emergency_state_overshoot_stop_dist must be non-negative, got %f", st.EmergencyStateOvershootStopDist)
	}
	ss := c.SmoothStop
	if ss.MaxStrongAcc >= 0 || ss.WeakAcc >= 0 || ss.WeakStopAcc >= 0 || ss.StrongStopAcc >= 0 {
		return fmt.Errorf("smooth stop accelerations must be negative")
	}
	if ss.MinStrongAcc > ss.MaxStrongAcc {
		return fmt.Errorf("min_strong_acc %f exceeds max_strong_acc %f", ss.MinStrongAcc, ss.MaxStrongAcc)
	}
	if c.Emergency.Acc >= 0 || c.Emergency.Jerk >= 0 {
		return fmt.Errorf("emergency acc and jerk must be negative")
	}
	if c.Stopped.Acc >= 0 || c.Stopped.Jerk >= 0 {
		return fmt.Errorf("stopped acc and jerk must be negative")
	}
	if c.Stopped.Acc < c.Limits.MinAcc || c.Emergency.Acc < c.Limits.MinAcc {
		return fmt.Errorf("stopped/emergency acc must lie within the global [min_acc, max_acc] band")
	}
	return nil
}

// LoadConfig reads a JSON config file over the defaults and validates the
// result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
