package udp

import (
	"errors"
	"net"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

var errUnsupportedOperation = errors.New("unsupported operation")

func EnableRxTimestamps(conn *net.UDPConn) error {
	return setsockoptInt(conn, unix.SOL_SOCKET, unix.SO_TIMESTAMP, 1)
}

// TimestampFromOOBData returns the SCM_TIMESTAMP receive timestamp in oob.
func TimestampFromOOBData(oob []byte) (time.Time, error) {
	var ts time.Time
	err := controlMessages(oob, func(level, typ int32, data []byte) (bool, error) {
		if level != unix.SOL_SOCKET || typ != unix.SCM_TIMESTAMP {
			return false, nil
		}
		if len(data) < int(unsafe.Sizeof(unix.Timeval{})) {
			return false, errUnexpectedData
		}
		tv := (*unix.Timeval)(unsafe.Pointer(&data[0]))
		ts = time.Unix(tv.Unix()).UTC()
		return true, nil
	})
	if err != nil {
		return time.Time{}, err
	}
	if ts.IsZero() {
		return time.Time{}, errTimestampNotFound
	}
	return ts, nil
}

// EnableTimestamping is not supported; callers fall back to
// EnableRxTimestamps.
func EnableTimestamping(conn *net.UDPConn, iface string) error {
	return errUnsupportedOperation
}

func ReadTXTimestamp(conn *net.UDPConn) (time.Time, uint32, error) {
	return time.Time{}, 0, errUnsupportedOperation
}
