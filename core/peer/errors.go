package peer

import (
	"errors"
)

// AcceptSynchronizationError explains why a response carrying a measurement
// was not trusted.
type AcceptSynchronizationError uint8

const (
	ServerUnsynchronized AcceptSynchronizationError = iota + 1
	LoopDetected
	DistanceTooLarge
	StratumInvalid
	AuthenticationFailed
)

func (e AcceptSynchronizationError) Error() string {
	switch e {
	case ServerUnsynchronized:
		return "server unsynchronized"
	case LoopDetected:
		return "synchronization loop detected"
	case DistanceTooLarge:
		return "root distance too large"
	case StratumInvalid:
		return "invalid stratum"
	case AuthenticationFailed:
		return "authentication failed"
	default:
		return "unacceptable response"
	}
}

// IgnoreReason explains why a response carried no new information.
type IgnoreReason uint8

const (
	DuplicatePacket IgnoreReason = iota + 1
	RateControl
	VersionMismatch
	TooSoon
	UnexpectedResponse
	InvalidPacket
	InvalidDelay
	ClockStepped
)

func (r IgnoreReason) Error() string {
	switch r {
	case DuplicatePacket:
		return "duplicate packet"
	case RateControl:
		return "rate control"
	case VersionMismatch:
		return "version or mode mismatch"
	case TooSoon:
		return "response too soon"
	case UnexpectedResponse:
		return "unexpected response"
	case InvalidPacket:
		return "invalid packet"
	case InvalidDelay:
		return "negative round trip delay"
	case ClockStepped:
		return "clock stepped during exchange"
	default:
		return "ignored response"
	}
}

var (
	ErrAwaitingResponse = errors.New("peer is awaiting a response")
	ErrNotAwaiting      = errors.New("peer is not awaiting a response")
	ErrUnusable         = errors.New("peer is unusable")
)

func IsRejected(err error) bool {
	var e AcceptSynchronizationError
	return errors.As(err, &e)
}

func IsIgnored(err error) bool {
	var r IgnoreReason
	return errors.As(err, &r)
}
