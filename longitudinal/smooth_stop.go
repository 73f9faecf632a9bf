package longitudinal

import (
	"math"
	"time"
)

// smoothStopPhase is the controller's internal sub-state while STOPPING.
type smoothStopPhase int

const (
	phaseStrongDecel smoothStopPhase = iota
	phaseWeakDecel
	phaseWeakStop
	phaseStrongStop
)

func (p smoothStopPhase) String() string {
	switch p {
	case phaseStrongDecel:
		return "strong_decel"
	case phaseWeakDecel:
		return "weak_decel"
	case phaseWeakStop:
		return "weak_stop"
	default:
		return "strong_stop"
	}
}

// SmoothStopController generates the STOPPING deceleration profile,
// independent of the DRIVE feedback loop. The profile is seeded from the
// velocity and acceleration at STOPPING entry so the transition cannot
// introduce a jerk step, then walks a deceleration ladder: a strong initial
// deceleration while the vehicle is still fast, a weak one as it slows, a
// weak brake hold once it has effectively stopped, and a strong stop if the
// vehicle overshoots the line.
type SmoothStopController struct {
	params SmoothStopParams

	active       bool
	strongAcc    float64
	phase        smoothStopPhase
	stoppedSince time.Time
	hasStopped   bool
}

// NewSmoothStopController creates the STOPPING command generator.
func NewSmoothStopController(params SmoothStopParams) *SmoothStopController {
	return &SmoothStopController{params: params}
}

// SetParams swaps in new profile parameters between ticks.
func (s *SmoothStopController) SetParams(params SmoothStopParams) {
	s.params = params
}

// Active reports whether a stop profile is in progress.
func (s *SmoothStopController) Active() bool {
	return s.active
}

// Phase names the current profile phase for telemetry.
func (s *SmoothStopController) Phase() string {
	if !s.active {
		return "idle"
	}
	return s.phase.String()
}

// Init seeds the profile from the motion at STOPPING entry. The strong
// deceleration is interpolated between its min and max bound by the entry
// speed, so fast entries brake harder without a discontinuity: the entry
// acceleration itself caps the seed when it is already more negative.
func (s *SmoothStopController) Init(entryVel, entryAcc float64) {
	frac := clampFloat(math.Abs(entryVel)/math.Max(s.params.MinFastVel, 1e-3), 0.0, 1.0)
	strong := s.params.MaxStrongAcc + frac*(s.params.MinStrongAcc-s.params.MaxStrongAcc)
	if entryAcc < strong {
		strong = math.Max(entryAcc, s.params.MinStrongAcc)
	}
	s.strongAcc = strong
	s.phase = phaseStrongDecel
	s.hasStopped = false
	s.active = true
}

// Reset abandons the profile; called when leaving STOPPING.
func (s *SmoothStopController) Reset() {
	s.active = false
	s.hasStopped = false
}

// Command returns the profile acceleration for one tick. The vehicle counts
// as settled only when both its velocity and its measured acceleration are
// below the running thresholds, so early brake fade cannot pass for a stop.
func (s *SmoothStopController) Command(now time.Time, stopDist, currentVel, currentAcc float64) float64 {
	if !s.active {
		// Entered STOPPING without Init; behave like a fresh profile.
		s.Init(currentVel, s.params.WeakAcc)
	}

	running := math.Abs(currentVel) > s.params.MinRunningVel ||
		math.Abs(currentAcc) > s.params.MinRunningAcc
	if !running {
		if !s.hasStopped {
			s.hasStopped = true
			s.stoppedSince = now
		}
	} else {
		s.hasStopped = false
	}

	switch {
	case stopDist < s.params.StrongStopDist:
		// Overshot well past the line; push back hard.
		s.phase = phaseStrongStop
		return s.params.StrongStopAcc
	case stopDist < s.params.WeakStopDist:
		s.phase = phaseWeakStop
		return s.params.WeakStopAcc
	case s.hasStopped && now.Sub(s.stoppedSince).Seconds() > s.params.WeakStopTime:
		// Settled at the line; keep a light brake on.
		s.phase = phaseWeakStop
		return s.params.WeakStopAcc
	case math.Abs(currentVel) < s.params.MinFastVel:
		s.phase = phaseWeakDecel
		return s.params.WeakAcc
	default:
		s.phase = phaseStrongDecel
		return s.strongAcc
	}
}
