package longitudinal

// StateMachineFlags are the feature switches the transition function honors.
type StateMachineFlags struct {
	EnableSmoothStop         bool
	EnableOvershootEmergency bool
}

// NextState computes the control state for this tick. It is a pure function
// of the persisted state and the tick's ControlData: replaying the same data
// sequence from the same initial state always yields the same state
// sequence.
//
// EMERGENCY wins over everything and is sticky; it is left only once the
// deviation has cleared and the vehicle satisfies the STOPPED entry
// condition, the conservative reading of "motion is nominal again".
// DRIVE -> STOPPING uses DriveStateStopDist for entry and
// DriveStateStopDist+DriveStateOffsetStopDist for exit, so the state cannot
// flap across the boundary.
func NextState(cur ControlState, data ControlData, p StateTransitionParams, flags StateMachineFlags) ControlState {
	overshoot := flags.EnableOvershootEmergency &&
		(cur == StateStopping || cur == StateStopped || cur == StateEmergency) &&
		data.StopDist < -p.EmergencyStateOvershootStopDist
	emergency := data.IsFarFromTrajectory || overshoot

	stopped := stoppedCondition(data, p)

	if emergency {
		return StateEmergency
	}

	switch cur {
	case StateEmergency:
		if stopped {
			return StateStopped
		}
		return StateEmergency

	case StateStopped:
		if stopped {
			return StateStopped
		}
		// The stop target moved away or the vehicle is rolling; resume.
		if flags.EnableSmoothStop && data.StopDist <= p.DriveStateStopDist {
			return StateStopping
		}
		return StateDrive

	case StateStopping:
		if stopped {
			return StateStopped
		}
		if data.StopDist > p.DriveStateStopDist+p.DriveStateOffsetStopDist {
			return StateDrive
		}
		return StateStopping

	default: // StateDrive
		// With smooth stop enabled STOPPED is reached only through
		// STOPPING, so the stop profile always runs.
		if flags.EnableSmoothStop {
			if data.StopDist <= p.DriveStateStopDist {
				return StateStopping
			}
			return StateDrive
		}
		if stopped {
			return StateStopped
		}
		return StateDrive
	}
}
