package longitudinal

// PIDGains holds the feedback gains for the velocity error loop.
type PIDGains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// PIDLimits bounds the total output and each individual contribution.
// Per-term limits keep a single misbehaving term (usually the integral on a
// long uphill) from dominating the command.
type PIDLimits struct {
	MaxOut float64 `json:"max_out"`
	MinOut float64 `json:"min_out"`
	MaxP   float64 `json:"max_p"`
	MinP   float64 `json:"min_p"`
	MaxI   float64 `json:"max_i"`
	MinI   float64 `json:"min_i"`
	MaxD   float64 `json:"max_d"`
	MinD   float64 `json:"min_d"`
}

// PIDController implements a discrete PID on the velocity error. The caller
// decides per update whether the integral may accumulate, so integration can
// be frozen while the vehicle is nearly stationary.
type PIDController struct {
	gains  PIDGains
	limits PIDLimits

	errIntegral  float64
	prevError    float64
	prevDeriv    float64
	prevErrValid bool
}

// PIDContributions is the per-term breakdown of the last Update, for
// telemetry.
type PIDContributions struct {
	P float64
	I float64
	D float64
}

// NewPIDController creates a PID controller with the given gains and limits.
func NewPIDController(gains PIDGains, limits PIDLimits) *PIDController {
	return &PIDController{gains: gains, limits: limits}
}

// Reset clears the integral and derivative state.
func (pid *PIDController) Reset() {
	pid.errIntegral = 0.0
	pid.prevError = 0.0
	pid.prevDeriv = 0.0
	pid.prevErrValid = false
}

// Update computes the feedback output for one velocity error sample.
// Integration is skipped when enableIntegration is false or dt is not
// positive; the derivative uses the error difference to avoid setpoint kick
// and falls back to the previous derivative when dt is not positive.
func (pid *PIDController) Update(err, dt float64, enableIntegration bool) (float64, PIDContributions) {
	p := clampFloat(pid.gains.Kp*err, pid.limits.MinP, pid.limits.MaxP)

	if enableIntegration && dt > 0 {
		pid.errIntegral += err * dt
	}
	i := clampFloat(pid.gains.Ki*pid.errIntegral, pid.limits.MinI, pid.limits.MaxI)
	// Keep the stored integral consistent with the clamp so it does not
	// wind up beyond what the output can ever use.
	if pid.gains.Ki != 0 {
		pid.errIntegral = clampFloat(pid.errIntegral, pid.limits.MinI/pid.gains.Ki, pid.limits.MaxI/pid.gains.Ki)
	}

	d := pid.prevDeriv
	if dt > 0 && pid.prevErrValid {
		d = pid.gains.Kd * (err - pid.prevError) / dt
	}
	d = clampFloat(d, pid.limits.MinD, pid.limits.MaxD)

	pid.prevError = err
	pid.prevDeriv = d
	pid.prevErrValid = true

	out := clampFloat(p+i+d, pid.limits.MinOut, pid.limits.MaxOut)
	return out, PIDContributions{P: p, I: i, D: d}
}

// Integral returns the accumulated error integral.
func (pid *PIDController) Integral() float64 {
	return pid.errIntegral
}
