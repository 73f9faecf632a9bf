package longitudinal

import "math"

// Gravity is the standard gravitational acceleration used by slope
// compensation, in m/s².
const Gravity = 9.80665

// Motion is a longitudinal command or measurement sample.
type Motion struct {
	Vel float64 // m/s
	Acc float64 // m/s²
}

// Shift is the intended direction of travel. It is derived once per tick
// from the trajectory's target velocity sign and is used to pick the sign
// of slope compensation.
type Shift int

const (
	ShiftForward Shift = iota
	ShiftReverse
)

func (s Shift) String() string {
	if s == ShiftReverse {
		return "REVERSE"
	}
	return "FORWARD"
}

// Sign returns +1 for forward travel and -1 for reverse.
func (s Shift) Sign() float64 {
	if s == ShiftReverse {
		return -1.0
	}
	return 1.0
}

// ControlState is the controller's operating mode. Exactly one state is
// active at any time; transitions happen only inside the state machine step.
type ControlState int

const (
	StateDrive ControlState = iota
	StateStopping
	StateStopped
	StateEmergency
)

func (s ControlState) String() string {
	switch s {
	case StateDrive:
		return "DRIVE"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// Pose is a planar vehicle pose with elevation and attitude. Yaw and pitch
// are in radians; pitch follows the convention that an upward (nose-up)
// slope is negative.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// PlanarDistanceTo returns the XY Euclidean distance between two poses.
func (p Pose) PlanarDistanceTo(o Pose) float64 {
	return math.Hypot(o.X-p.X, o.Y-p.Y)
}

// ControlData is the per-tick snapshot every component reads. It is built
// once at the start of a tick and treated as immutable afterwards.
type ControlData struct {
	IsFarFromTrajectory bool
	NearestIdx          int // 0 when no nearest point was found
	CurrentMotion       Motion
	Shift               Shift
	StopDist            float64 // signed, positive while before the stop line
	SlopeAngle          float64 // rad, upward negative
	DT                  float64 // seconds since the previous tick, 0 on the first
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// applyDiffLimit bounds how far value may move away from prev in one step of
// duration dt, given signed lower/upper rates. With acceleration inputs this
// is a jerk limit.
func applyDiffLimit(value, prev, dt, minRate, maxRate float64) float64 {
	lo := prev + minRate*dt
	hi := prev + maxRate*dt
	return clampFloat(value, lo, hi)
}

// isFinite reports whether v is a usable number.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
