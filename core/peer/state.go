package peer

import (
	"errors"
)

type State uint8

const (
	WaitingToSend State = iota
	AwaitingResponse
	Measured
	TimedOut
	Rejected
	Ignored
)

func (s State) String() string {
	switch s {
	case WaitingToSend:
		return "WaitingToSend"
	case AwaitingResponse:
		return "AwaitingResponse"
	case Measured:
		return "Measured"
	case TimedOut:
		return "TimedOut"
	case Rejected:
		return "Rejected"
	case Ignored:
		return "Ignored"
	default:
		return "State(?)"
	}
}

type event uint8

const (
	evPoll event = iota
	evMeasured
	evTimeout
	evRejected
	evIgnored
	evAbandon
)

var errInvalidTransition = errors.New("invalid peer state transition")

// transition returns the state following s on ev and the outcome of the
// exchange. Exchange outcomes are transient: the peer is ready to send again
// as soon as an outcome has been recorded.
func transition(s State, ev event) (next, outcome State, err error) {
	switch s {
	case WaitingToSend:
		if ev == evPoll {
			return AwaitingResponse, AwaitingResponse, nil
		}
	case AwaitingResponse:
		switch ev {
		case evMeasured:
			return WaitingToSend, Measured, nil
		case evTimeout:
			return WaitingToSend, TimedOut, nil
		case evRejected:
			return WaitingToSend, Rejected, nil
		case evIgnored:
			return WaitingToSend, Ignored, nil
		case evAbandon:
			return WaitingToSend, WaitingToSend, nil
		}
	}
	return s, s, errInvalidTransition
}
