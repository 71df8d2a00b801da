package udp

import (
	"encoding/binary"
	"errors"
	"net"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// sizeofKernelTimespec is the size of struct __kernel_timespec used by
// SO_TIMESTAMPING_NEW on every architecture.
const sizeofKernelTimespec = 16

func EnableRxTimestamps(conn *net.UDPConn) error {
	return setsockoptInt(conn, unix.SOL_SOCKET, unix.SO_TIMESTAMPNS, 1)
}

// timestamping decodes a SO_TIMESTAMPING_NEW control message. Software
// timestamps are reported in the first, raw hardware timestamps in the third
// of three timespecs.
func timestamping(data []byte) (time.Time, error) {
	if len(data) != 3*sizeofKernelTimespec {
		return time.Time{}, errUnexpectedData
	}
	var ts [3]time.Time
	var set [3]bool
	for i := range ts {
		b := data[i*sizeofKernelTimespec:]
		sec := int64(binary.NativeEndian.Uint64(b[0:8]))
		nsec := int64(binary.NativeEndian.Uint64(b[8:16]))
		set[i] = sec != 0 || nsec != 0
		ts[i] = time.Unix(sec, nsec)
	}
	switch {
	case set[1], set[0] && set[2]:
		return time.Time{}, errUnexpectedData
	case set[2]:
		return ts[2], nil
	default:
		return ts[0], nil
	}
}

// TimestampFromOOBData returns the receive timestamp in oob, reported either
// via SO_TIMESTAMPING_NEW or SO_TIMESTAMPNS.
func TimestampFromOOBData(oob []byte) (time.Time, error) {
	var ts time.Time
	found := false
	err := controlMessages(oob, func(level, typ int32, data []byte) (bool, error) {
		if level != unix.SOL_SOCKET {
			return false, nil
		}
		var err error
		switch typ {
		case unix.SO_TIMESTAMPING_NEW:
			ts, err = timestamping(data)
		case unix.SCM_TIMESTAMPNS:
			if len(data) != int(unsafe.Sizeof(unix.Timespec{})) {
				return false, errUnexpectedData
			}
			t := (*unix.Timespec)(unsafe.Pointer(&data[0]))
			ts = time.Unix(t.Unix())
		default:
			return false, nil
		}
		found = err == nil
		return true, err
	})
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return time.Time{}, errTimestampNotFound
	}
	return ts, nil
}

// For details on hardware timestamping configuration, see
// - https://docs.kernel.org/networking/timestamping.html
// - https://github.com/torvalds/linux/blob/master/include/uapi/linux/net_tstamp.h

const (
	hwtstampTxOn             = 1
	hwtstampFilterAll        = 1
	hwtstampFilterPTPv2Event = 12
)

type hwtstampConfig struct {
	flags    int32
	txType   int32
	rxFilter int32
}

// See https://man7.org/linux/man-pages/man7/netdevice.7.html
type ifreq struct {
	name [unix.IFNAMSIZ]byte
	data uintptr
}

func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// configureHardwareTimestamps turns on TX timestamps and the given RX filter
// on the network interface ifname unless already active.
func configureHardwareTimestamps(fd int, ifname string, filter int32) error {
	// Based on Meta's time libraries at https://github.com/facebook/time
	var cfg hwtstampConfig
	var req ifreq
	copy(req.name[:len(req.name)-1], ifname)
	req.data = uintptr(unsafe.Pointer(&cfg))

	err := ioctl(fd, unix.SIOCGHWTSTAMP, unsafe.Pointer(&req))
	if err != nil {
		return err
	}
	if cfg.txType == hwtstampTxOn && cfg.rxFilter == filter {
		return nil
	}
	cfg.txType = hwtstampTxOn
	cfg.rxFilter = filter
	return ioctl(fd, unix.SIOCSHWTSTAMP, unsafe.Pointer(&req))
}

// EnableTimestamping enables RX and TX timestamps on conn. Hardware
// timestamps are requested from iface if not empty, software timestamps
// otherwise. TX timestamps carry a counter of the packets sent.
func EnableTimestamping(conn *net.UDPConn, iface string) error {
	flags := unix.SOF_TIMESTAMPING_OPT_ID | unix.SOF_TIMESTAMPING_OPT_TSONLY
	if iface == "" {
		flags |= unix.SOF_TIMESTAMPING_SOFTWARE |
			unix.SOF_TIMESTAMPING_RX_SOFTWARE |
			unix.SOF_TIMESTAMPING_TX_SOFTWARE
		return setsockoptInt(conn, unix.SOL_SOCKET, unix.SO_TIMESTAMPING_NEW, flags)
	}

	sconn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	err = sconn.Control(func(fd uintptr) {
		// not every NIC filters all packets; PTP event filtering still
		// timestamps NTP on some of them
		err := configureHardwareTimestamps(int(fd), iface, hwtstampFilterAll)
		if err != nil && !errors.Is(err, syscall.EPERM) {
			_ = configureHardwareTimestamps(int(fd), iface, hwtstampFilterPTPv2Event)
		}
	})
	if err != nil {
		return err
	}
	flags |= unix.SOF_TIMESTAMPING_RAW_HARDWARE |
		unix.SOF_TIMESTAMPING_RX_HARDWARE |
		unix.SOF_TIMESTAMPING_TX_HARDWARE
	return setsockoptInt(conn, unix.SOL_SOCKET, unix.SO_TIMESTAMPING_NEW, flags)
}

// sock_extended_err: errno(4) origin(1) type(1) code(1) pad(1) info(4) data(4)
const sizeofSockExtendedErr = 16

func txTimestampFromOOBData(oob []byte) (time.Time, uint32, error) {
	var ts time.Time
	var id uint32
	var tsSet, idSet bool
	err := controlMessages(oob, func(level, typ int32, data []byte) (bool, error) {
		switch {
		case level == unix.SOL_SOCKET && typ == unix.SO_TIMESTAMPING_NEW:
			var err error
			ts, err = timestamping(data)
			if err != nil {
				return false, err
			}
			tsSet = true
		case level == unix.SOL_IP && typ == unix.IP_RECVERR,
			level == unix.SOL_IPV6 && typ == unix.IPV6_RECVERR:
			if len(data) < sizeofSockExtendedErr {
				return false, errUnexpectedData
			}
			errno := binary.NativeEndian.Uint32(data[0:4])
			origin := data[4]
			if errno != uint32(unix.ENOMSG) || origin != unix.SO_EE_ORIGIN_TIMESTAMPING {
				return false, errUnexpectedData
			}
			id = binary.NativeEndian.Uint32(data[12:16])
			idSet = true
		}
		return false, nil
	})
	if err != nil {
		return time.Time{}, 0, err
	}
	if !tsSet || !idSet {
		return time.Time{}, 0, errTimestampNotFound
	}
	return ts, id, nil
}

func retryEINTR[T any](f func() (T, error)) (T, error) {
	for {
		v, err := f()
		if err != unix.EINTR {
			return v, err
		}
	}
}

// ReadTXTimestamp reads the transmit timestamp of the last packet sent on
// conn from the socket's error queue. The returned id counts the packets sent
// since timestamping was enabled.
func ReadTXTimestamp(conn *net.UDPConn) (time.Time, uint32, error) {
	sconn, err := conn.SyscallConn()
	if err != nil {
		return time.Time{}, 0, err
	}
	var (
		ts   time.Time
		id   uint32
		rerr error
	)
	err = sconn.Read(func(fd uintptr) bool {
		pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLPRI}}
		n, err := retryEINTR(func() (int, error) {
			return unix.Poll(pollFds, 1 /* timeout */)
		})
		if err != nil {
			rerr = err
			return true
		}
		if n != len(pollFds) {
			rerr = errTimestampNotFound
			return true
		}
		type msg struct {
			n, oobn, flags int
			from           unix.Sockaddr
		}
		oob := make([]byte, 128)
		m, err := retryEINTR(func() (msg, error) {
			n, oobn, flags, from, err := unix.Recvmsg(int(fd), nil, oob, unix.MSG_ERRQUEUE)
			return msg{n, oobn, flags, from}, err
		})
		switch {
		case err != nil:
			rerr = err
		case m.n != 0 || m.flags != unix.MSG_ERRQUEUE || m.from != nil:
			rerr = errUnexpectedData
		default:
			ts, id, rerr = txTimestampFromOOBData(oob[:m.oobn])
		}
		return true
	})
	if err != nil {
		return time.Time{}, 0, err
	}
	return ts, id, rerr
}
