package longitudinal

import (
	"fmt"
	"time"
)

// Diagnostics is the non-authoritative per-tick telemetry record. Dropping
// it never affects control.
type Diagnostics struct {
	Stamp time.Time
	State ControlState

	DT         float64
	NearestIdx int
	Shift      Shift
	StopDist   float64
	SlopeAngle float64
	IsFar      bool
	Stale      bool

	CurrentVel   float64
	CurrentAcc   float64
	TargetVel    float64
	TargetAcc    float64
	PredictedVel float64
	VelError     float64
	PID          PIDContributions
	BrakeKeeping bool

	SmoothStopPhase string

	RawAcc      float64
	FilteredAcc float64
	SlopeComp   float64
	NaNGuarded  bool
}

// TelemetryHeader is the CSV column list matching TelemetryRecord.
func TelemetryHeader() []string {
	return []string{
		"stamp", "state", "dt", "nearest_idx", "shift", "stop_dist",
		"slope_angle", "is_far", "stale", "current_vel", "current_acc",
		"target_vel", "target_acc", "predicted_vel", "vel_error",
		"pid_p", "pid_i", "pid_d", "brake_keeping", "smooth_stop_phase",
		"raw_acc", "filtered_acc", "slope_comp", "nan_guarded",
	}
}

// TelemetryRecord renders the diagnostics as one CSV row.
func (d Diagnostics) TelemetryRecord() []string {
	b := func(v bool) string {
		if v {
			return "1"
		}
		return "0"
	}
	f := func(v float64) string { return fmt.Sprintf("%.6f", v) }
	return []string{
		d.Stamp.Format(time.RFC3339Nano),
		d.State.String(),
		f(d.DT),
		fmt.Sprintf("%d", d.NearestIdx),
		d.Shift.String(),
		f(d.StopDist),
		f(d.SlopeAngle),
		b(d.IsFar),
		b(d.Stale),
		f(d.CurrentVel),
		f(d.CurrentAcc),
		f(d.TargetVel),
		f(d.TargetAcc),
		f(d.PredictedVel),
		f(d.VelError),
		f(d.PID.P),
		f(d.PID.I),
		f(d.PID.D),
		b(d.BrakeKeeping),
		d.SmoothStopPhase,
		f(d.RawAcc),
		f(d.FilteredAcc),
		f(d.SlopeComp),
		b(d.NaNGuarded),
	}
}
