package state

// validTransitions contains the permitted onboarding transitions.
var validTransitions = map[State][]State{
	StateWaitingGender: {
		StateWaitingInterval,
	},
	StateWaitingInterval: {
		StateWaitingTimezone,
	},
	StateWaitingTimezone: {
		StateActive,
	},
	StateActive: {
		StateWaitingInterval,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is valid.
// The empty state stands for "no record" and may only enter StateWaitingGender.
func IsTransitionAllowed(from, to State) bool {
	if from == "" {
		return to == StateWaitingGender
	}

	for _, state := range validTransitions[from] {
		if state == to {
			return true
		}
	}

	return false
}
