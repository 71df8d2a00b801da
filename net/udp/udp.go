package udp

import (
	"errors"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

var (
	errTimestampNotFound = errors.New("failed to read timestamp from out of band data")
	errUnexpectedData    = errors.New("failed to read out of band data")
	errInvalidDSCP       = errors.New("invalid DSCP value")
)

// Timestamp handling based on studying code from the following projects:
// - https://github.com/bsdphk/Ntimed, file udp.c
// - https://github.com/golang/go, package "golang.org/x/sys/unix"
// - https://github.com/facebook/time, package "github.com/facebook/time/ntp/protocol/ntp"

// TimestampLen is the size of the out of band buffer needed to receive a
// packet's timestamp.
func TimestampLen() int {
	return unix.CmsgSpace(3 * 16)
}

func setsockoptInt(conn *net.UDPConn, level, opt, value int) error {
	sconn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = sconn.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), level, opt, value)
	})
	if err != nil {
		return err
	}
	return serr
}

// controlMessages parses oob and calls fn for every control message until fn
// returns true or an error.
func controlMessages(oob []byte,
	fn func(level, typ int32, data []byte) (bool, error)) error {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return errUnexpectedData
	}
	for _, m := range msgs {
		done, err := fn(m.Header.Level, m.Header.Type, m.Data)
		if err != nil || done {
			return err
		}
	}
	return nil
}

// SetDSCP sets the Differentiated Services Codepoint of packets sent on conn.
func SetDSCP(conn *net.UDPConn, dscp uint8) error {
	if dscp > 63 {
		return errInvalidDSCP
	}
	laddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return errUnexpectedData
	}
	if laddr.IP.To4() != nil {
		return setsockoptInt(conn, unix.IPPROTO_IP, unix.IP_TOS, int(dscp<<2))
	}
	return setsockoptInt(conn, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, int(dscp<<2))
}

func sameAddr(x, y netip.AddrPort) bool {
	return x.Addr().Unmap() == y.Addr().Unmap() && x.Port() == y.Port()
}
