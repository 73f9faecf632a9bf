package longitudinal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testTransitionParams() StateTransitionParams {
	return StateTransitionParams{
		DriveStateStopDist:              0.5,
		DriveStateOffsetStopDist:        1.0,
		StoppedStateEntryVel:            0.2,
		StoppedStateEntryAcc:            0.5,
		StoppedStateEntryDist:           0.5,
		EmergencyStateOvershootStopDist: 1.5,
		EmergencyStateTrajTransDev:      3.0,
		EmergencyStateTrajRotDev:        0.7,
	}
}

func allFlags() StateMachineFlags {
	return StateMachineFlags{EnableSmoothStop: true, EnableOvershootEmergency: true}
}

func drivingData(stopDist float64) ControlData {
	return ControlData{
		CurrentMotion: Motion{Vel: 3.0, Acc: 0.0},
		StopDist:      stopDist,
	}
}

func stoppedData() ControlData {
	return ControlData{
		CurrentMotion: Motion{Vel: 0.05, Acc: 0.1},
		StopDist:      0.1,
	}
}

func TestFarFromTrajectoryForcesEmergencyFromAnyState(t *testing.T) {
	p, flags := testTransitionParams(), allFlags()
	data := drivingData(10)
	data.IsFarFromTrajectory = true
	for _, cur := range []ControlState{StateDrive, StateStopping, StateStopped, StateEmergency} {
		assert.Equal(t, StateEmergency, NextState(cur, data, p, flags), "from %s", cur)
	}
}

func TestOvershootEmergencyOnlyWhileStopExpected(t *testing.T) {
	p, flags := testTransitionParams(), allFlags()
	data := drivingData(-2.0) // 2m past the stop line, beyond the 1.5m allowance

	assert.Equal(t, StateEmergency, NextState(StateStopping, data, p, flags))
	assert.Equal(t, StateEmergency, NextState(StateStopped, data, p, flags))
	// In DRIVE a negative stop distance means the plan moved the stop line,
	// not an overshoot; the hysteresis path handles it.
	assert.NotEqual(t, StateEmergency, NextState(StateDrive, data, p, flags))
}

func TestOvershootEmergencyDisabled(t *testing.T) {
	p := testTransitionParams()
	flags := StateMachineFlags{EnableSmoothStop: true, EnableOvershootEmergency: false}
	data := drivingData(-2.0)
	assert.NotEqual(t, StateEmergency, NextState(StateStopping, data, p, flags))
}

func TestDriveToStoppingHysteresis(t *testing.T) {
	p, flags := testTransitionParams(), allFlags()

	// Entry at the lower threshold.
	assert.Equal(t, StateDrive, NextState(StateDrive, drivingData(0.6), p, flags))
	assert.Equal(t, StateStopping, NextState(StateDrive, drivingData(0.5), p, flags))

	// Inside the hysteresis band STOPPING holds.
	assert.Equal(t, StateStopping, NextState(StateStopping, drivingData(1.2), p, flags))
	assert.Equal(t, StateStopping, NextState(StateStopping, drivingData(1.5), p, flags))

	// Exit only above entry + offset.
	assert.Equal(t, StateDrive, NextState(StateStopping, drivingData(1.6), p, flags))
}

func TestStoppingToStopped(t *testing.T) {
	p, flags := testTransitionParams(), allFlags()
	assert.Equal(t, StateStopped, NextState(StateStopping, stoppedData(), p, flags))
}

func TestStoppedConditionRequiresAllGuards(t *testing.T) {
	p, flags := testTransitionParams(), allFlags()

	fastVel := stoppedData()
	fastVel.CurrentMotion.Vel = 0.3
	bigAcc := stoppedData()
	bigAcc.CurrentMotion.Acc = 0.8
	farStop := stoppedData()
	farStop.StopDist = 2.0
	overshot := stoppedData()
	overshot.StopDist = -0.8

	for name, data := range map[string]ControlData{
		"velocity too high": fastVel,
		"accel too high":    bigAcc,
		"stop too far":      farStop,
		"overshot stop":     overshot,
	} {
		assert.NotEqual(t, StateStopped, NextState(StateStopping, data, p, flags), name)
	}
}

func TestDriveNeverSkipsStopping(t *testing.T) {
	p, flags := testTransitionParams(), allFlags()
	// Even with the full STOPPED condition satisfied, DRIVE hands off to
	// STOPPING first so the stop profile always runs.
	assert.Equal(t, StateStopping, NextState(StateDrive, stoppedData(), p, flags))
}

func TestDriveDirectToStoppedWithoutSmoothStop(t *testing.T) {
	p := testTransitionParams()
	flags := StateMachineFlags{EnableSmoothStop: false, EnableOvershootEmergency: true}
	assert.Equal(t, StateStopped, NextState(StateDrive, stoppedData(), p, flags))
}

func TestStoppedResumesWhenStopMovesAway(t *testing.T) {
	p, flags := testTransitionParams(), allFlags()
	assert.Equal(t, StateDrive, NextState(StateStopped, drivingData(50), p, flags))
	assert.Equal(t, StateStopping, NextState(StateStopped, drivingData(0.3), p, flags))
}

func TestEmergencyIsSticky(t *testing.T) {
	p, flags := testTransitionParams(), allFlags()

	// Deviation cleared but still rolling: hold EMERGENCY.
	assert.Equal(t, StateEmergency, NextState(StateEmergency, drivingData(10), p, flags))
	// Deviation cleared and motion nominal at the stop: recover to STOPPED.
	assert.Equal(t, StateStopped, NextState(StateEmergency, stoppedData(), p, flags))
}

func TestTransitionsAreDeterministicUnderReplay(t *testing.T) {
	p, flags := testTransitionParams(), allFlags()
	seq := []ControlData{
		drivingData(10), drivingData(0.4), stoppedData(),
		{IsFarFromTrajectory: true}, stoppedData(), drivingData(20),
	}

	run := func() []ControlState {
		state := StateStopped
		out := make([]ControlState, 0, len(seq))
		for _, d := range seq {
			state = NextState(state, d, p, flags)
			out = append(out, state)
		}
		return out
	}
	assert.Equal(t, run(), run())
}
