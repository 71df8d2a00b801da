package udp

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"time"

	"go.uber.org/zap"
)

var (
	errWrite = errors.New("failed to write packet")
)

// Conn exchanges packets with a single remote host over an unconnected UDP
// socket, using kernel timestamps where available.
type Conn struct {
	log    *zap.Logger
	conn   *net.UDPConn
	remote netip.AddrPort
	txts   bool
	txID   uint32
	oob    []byte
}

// Dial opens a socket bound to local for exchanges with remote. Hardware
// timestamps are requested from iface if not empty.
func Dial(log *zap.Logger, local, remote netip.AddrPort, iface string, dscp uint8) (*Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(local))
	if err != nil {
		return nil, err
	}
	c := &Conn{
		log:    log,
		conn:   conn,
		remote: remote,
		oob:    make([]byte, TimestampLen()),
	}
	err = EnableTimestamping(conn, iface)
	if err != nil {
		log.Info("failed to enable timestamping", zap.Error(err))
		err = EnableRxTimestamps(conn)
		if err != nil {
			log.Error("failed to enable rx timestamps", zap.Error(err))
		}
	} else {
		c.txts = true
	}
	err = SetDSCP(conn, dscp)
	if err != nil {
		log.Info("failed to set DSCP", zap.Error(err))
	}
	return c, nil
}

func (c *Conn) LocalAddr() netip.AddrPort {
	return c.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) Send(ctx context.Context, b []byte) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	deadline, _ := ctx.Deadline()
	err := c.conn.SetWriteDeadline(deadline)
	if err != nil {
		return time.Time{}, err
	}
	n, err := c.conn.WriteToUDPAddrPort(b, c.remote)
	if err != nil {
		return time.Time{}, err
	}
	if n != len(b) {
		return time.Time{}, errWrite
	}
	if !c.txts {
		return time.Time{}, nil
	}
	ts, id, err := ReadTXTimestamp(c.conn)
	if err != nil {
		c.log.Error("failed to read packet tx timestamp", zap.Error(err))
		c.txID++
		return time.Time{}, nil
	}
	if id != c.txID {
		c.log.Error("failed to read packet tx timestamp",
			zap.Uint32("id", id), zap.Uint32("expected", c.txID))
		c.txID = id + 1
		return time.Time{}, nil
	}
	c.txID++
	return ts, nil
}

// Recv returns the next packet from the remote host. Packets from other
// sources are dropped.
func (c *Conn) Recv(ctx context.Context, b []byte) (int, time.Time, error) {
	deadline, _ := ctx.Deadline()
	err := c.conn.SetReadDeadline(deadline)
	if err != nil {
		return 0, time.Time{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		oob := c.oob[:cap(c.oob)]
		n, oobn, flags, srcAddr, err := c.conn.ReadMsgUDPAddrPort(b, oob)
		if err != nil {
			if ctx.Err() != nil {
				return 0, time.Time{}, ctx.Err()
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return 0, time.Time{}, context.DeadlineExceeded
			}
			return 0, time.Time{}, err
		}
		if flags != 0 {
			c.log.Info("failed to read packet", zap.Int("flags", flags))
			continue
		}
		if !sameAddr(srcAddr, c.remote) {
			c.log.Info("received packet from unexpected source",
				zap.Stringer("from", srcAddr))
			continue
		}
		rxt, err := TimestampFromOOBData(oob[:oobn])
		if err != nil {
			c.log.Error("failed to read packet rx timestamp", zap.Error(err))
			rxt = time.Time{}
		}
		return n, rxt, nil
	}
}
