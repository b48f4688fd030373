package stats

import "github.com/pingit-io/pingit/internal/domain"

// Transition is what a single result did to a target's state.
type Transition int

const (
	// TransitionNone: state unchanged, no event activity (UP→UP).
	TransitionNone Transition = iota
	// TransitionFirst: first result ever, UNKNOWN→UP or UNKNOWN→DOWN.
	// No disconnect event is recorded either way.
	TransitionFirst
	// TransitionWentDown: UP→DOWN, opens a disconnect event.
	TransitionWentDown
	// TransitionStillDown: DOWN→DOWN, extends the open event.
	TransitionStillDown
	// TransitionRecovered: DOWN→UP, closes the open event.
	TransitionRecovered
)

// Next applies one probe outcome to the three-state machine and reports
// the resulting state and the transition that occurred.
func Next(cur domain.State, success bool) (domain.State, Transition) {
	switch cur {
	case domain.StateUnknown:
		if success {
			return domain.StateUp, TransitionFirst
		}
		return domain.StateDown, TransitionFirst
	case domain.StateUp:
		if success {
			return domain.StateUp, TransitionNone
		}
		return domain.StateDown, TransitionWentDown
	default: // StateDown
		if success {
			return domain.StateUp, TransitionRecovered
		}
		return domain.StateDown, TransitionStillDown
	}
}
