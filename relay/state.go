package relay

import "fmt"

/*
State of a submission attempt. Attempts advance strictly forward, Rejected
is terminal and reachable from every other state.
*/
type State int

const (
	StateReceived State = iota
	StateClassified
	StateSimulated
	StateProven
	StateSubmitted
	StateConfirmed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateClassified:
		return "classified"
	case StateSimulated:
		return "simulated"
	case StateProven:
		return "proven"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
