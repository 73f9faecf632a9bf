package longitudinal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func widePIDLimits() PIDLimits {
	return PIDLimits{
		MaxOut: 100, MinOut: -100,
		MaxP: 100, MinP: -100,
		MaxI: 100, MinI: -100,
		MaxD: 100, MinD: -100,
	}
}

func TestPIDProportionalOnly(t *testing.T) {
	pid := NewPIDController(PIDGains{Kp: 2.0}, widePIDLimits())
	out, contrib := pid.Update(1.5, 0.1, true)
	assert.InDelta(t, 3.0, out, 1e-12)
	assert.InDelta(t, 3.0, contrib.P, 1e-12)
	assert.Zero(t, contrib.I)
	assert.Zero(t, contrib.D)
}

func TestPIDIntegralAccumulates(t *testing.T) {
	pid := NewPIDController(PIDGains{Ki: 1.0}, widePIDLimits())
	pid.Update(2.0, 0.5, true)
	out, contrib := pid.Update(2.0, 0.5, true)
	assert.InDelta(t, 2.0, contrib.I, 1e-12)
	assert.InDelta(t, 2.0, out, 1e-12)
	assert.InDelta(t, 2.0, pid.Integral(), 1e-12)
}

func TestPIDIntegrationGate(t *testing.T) {
	pid := NewPIDController(PIDGains{Ki: 1.0}, widePIDLimits())
	pid.Update(2.0, 0.5, false)
	_, contrib := pid.Update(2.0, 0.5, false)
	assert.Zero(t, contrib.I)
	assert.Zero(t, pid.Integral())
}

func TestPIDNoIntegrationOnZeroDT(t *testing.T) {
	pid := NewPIDController(PIDGains{Ki: 1.0}, widePIDLimits())
	pid.Update(5.0, 0.0, true)
	assert.Zero(t, pid.Integral())
}

func TestPIDDerivativeOnErrorDiff(t *testing.T) {
	pid := NewPIDController(PIDGains{Kd: 1.0}, widePIDLimits())
	_, contrib := pid.Update(1.0, 0.1, true)
	// First sample has no previous error to difference against.
	assert.Zero(t, contrib.D)
	_, contrib = pid.Update(2.0, 0.1, true)
	assert.InDelta(t, 10.0, contrib.D, 1e-12)
}

func TestPIDPerTermAndOutputLimits(t *testing.T) {
	limits := PIDLimits{
		MaxOut: 2.5, MinOut: -2.5,
		MaxP: 2.0, MinP: -2.0,
		MaxI: 1.0, MinI: -1.0,
		MaxD: 0.0, MinD: 0.0,
	}
	pid := NewPIDController(PIDGains{Kp: 10, Ki: 10, Kd: 10}, limits)
	out, contrib := pid.Update(3.0, 1.0, true)
	assert.InDelta(t, 2.0, contrib.P, 1e-12)
	assert.InDelta(t, 1.0, contrib.I, 1e-12)
	assert.InDelta(t, 2.5, out, 1e-12)

	// The stored integral is clamped alongside its contribution, so backing
	// off the error immediately reduces the term.
	assert.InDelta(t, 0.1, pid.Integral(), 1e-12)
}

func TestPIDReset(t *testing.T) {
	pid := NewPIDController(PIDGains{Kp: 1, Ki: 1, Kd: 1}, widePIDLimits())
	pid.Update(4.0, 0.5, true)
	pid.Reset()
	assert.Zero(t, pid.Integral())
	out, contrib := pid.Update(0.0, 0.5, true)
	assert.Zero(t, out)
	assert.Zero(t, contrib.D)
}
