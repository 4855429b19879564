package server

// State is a lifecycle stage of the intelligence server. Transitions only
// move forward: Uninitialized, Bound, Listening, Terminated.
type State int32

const (
	StateUninitialized State = iota
	StateBound
	StateListening
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateBound:
		return "BOUND"
	case StateListening:
		return "LISTENING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}
