package ntp

import (
	"errors"
)

var (
	errUnexpectedLeap    = errors.New("unexpected leap indicator in request")
	errUnexpectedVersion = errors.New("unexpected version in request")
	errUnexpectedMode    = errors.New("unexpected mode in request")
	errInvalidSource     = errors.New("request from port 0")
)

// ValidateRequest checks that req, received from srcPort, is a client
// request a server may answer. NTPv1 clients send mode 0.
func ValidateRequest(req *Packet, srcPort uint16) error {
	switch req.LeapIndicator() {
	case LeapIndicatorNoWarning, LeapIndicatorUnknown:
	default:
		return errUnexpectedLeap
	}
	vn := req.Version()
	if vn < VersionMin || VersionMax < vn {
		return errUnexpectedVersion
	}
	wantMode := uint8(ModeClient)
	if vn == 1 {
		wantMode = ModeReserved0
	}
	if req.Mode() != wantMode {
		return errUnexpectedMode
	}
	if srcPort == 0 {
		return errInvalidSource
	}
	return nil
}
