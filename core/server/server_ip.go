package server

import (
	"context"
	"errors"
	"net"
	"net/netip"

	"github.com/libp2p/go-reuseport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/timesync/base/metrics"
	"example.com/timesync/base/ntptime"
	"example.com/timesync/core/sync"
	"example.com/timesync/core/timebase"
	"example.com/timesync/net/auth"
	"example.com/timesync/net/ntp"
	"example.com/timesync/net/udp"
)

const (
	ipServerNumGoroutine = 8
)

type ipServerMetrics struct {
	pktsReceived prometheus.Counter
	reqsAccepted prometheus.Counter
	reqsServed   prometheus.Counter
}

func newIPServerMetrics() *ipServerMetrics {
	return &ipServerMetrics{
		pktsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.IPServerPktsReceivedN,
			Help: metrics.IPServerPktsReceivedH,
		}),
		reqsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.IPServerReqsAcceptedN,
			Help: metrics.IPServerReqsAcceptedH,
		}),
		reqsServed: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.IPServerReqsServedN,
			Help: metrics.IPServerReqsServedH,
		}),
	}
}

var ipServerMtrcs = newIPServerMetrics()

// SystemSource provides the system snapshot served to clients.
type SystemSource interface {
	System() sync.SystemSnapshot
}

// Server answers client mode requests with the local clock's time, using the
// registered local clock for timestamps.
type Server struct {
	Log    *zap.Logger
	System SystemSource
	// Auth authenticates requests and responses if not nil. Unauthenticated
	// requests are dropped.
	Auth auth.Authenticator
	// Precision is announced in responses, DefaultPrecision if zero.
	Precision int8
	DSCP      uint8
	Iface     string
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Serve answers requests on conn until ctx is done. It closes conn.
func (s *Server) Serve(ctx context.Context, conn *net.UDPConn) error {
	log, mtrcs := s.log(), ipServerMtrcs
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	txts := true
	err := udp.EnableTimestamping(conn, s.Iface)
	if err != nil {
		txts = false
		log.Info("failed to enable timestamping", zap.Error(err))
		err = udp.EnableRxTimestamps(conn)
		if err != nil {
			log.Error("failed to enable rx timestamps", zap.Error(err))
		}
	}
	err = udp.SetDSCP(conn, s.DSCP)
	if err != nil {
		log.Info("failed to set DSCP", zap.Error(err))
	}
	a := s.Auth
	if a == nil {
		a = auth.None{}
	}
	precision := s.Precision
	if precision == 0 {
		precision = DefaultPrecision
	}

	var txID uint32
	buf := make([]byte, 2048)
	oob := make([]byte, udp.TimestampLen())
	for {
		buf = buf[:cap(buf)]
		oob = oob[:cap(oob)]
		n, oobn, flags, srcAddr, err := conn.ReadMsgUDPAddrPort(buf, oob)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error("failed to read packet", zap.Error(err))
			continue
		}
		if flags != 0 {
			log.Error("failed to read packet", zap.Int("flags", flags))
			continue
		}
		now := timebase.Now()
		rxt := now.Wall()
		ts, err := udp.TimestampFromOOBData(oob[:oobn])
		if err != nil {
			log.Debug("failed to read packet rx timestamp", zap.Error(err))
		} else {
			rxt = ntptime.TimestampFromTime(ts)
		}
		mtrcs.pktsReceived.Inc()

		payload, err := a.Verify(buf[:n])
		if err != nil {
			log.Info("failed to authenticate request",
				zap.Stringer("from", srcAddr), zap.Error(err))
			continue
		}
		var req ntp.Packet
		err = ntp.DecodePacket(&req, payload)
		if err != nil {
			log.Info("failed to decode packet payload", zap.Error(err))
			continue
		}
		err = ntp.ValidateRequest(&req, srcAddr.Port())
		if err != nil {
			log.Info("failed to validate packet payload", zap.Error(err))
			continue
		}
		mtrcs.reqsAccepted.Inc()
		log.Debug("received request",
			zap.Stringer("from", srcAddr),
			zap.Object("data", ntp.PacketMarshaler{Pkt: &req}))

		var resp ntp.Packet
		handleRequest(s.System.System(), now, precision, &req, rxt,
			timebase.Now().Wall(), &resp)
		var b []byte
		ntp.EncodePacket(&b, &resp)
		b, err = a.Sign(b)
		if err != nil {
			log.Error("failed to sign response", zap.Error(err))
			continue
		}

		n, err = conn.WriteToUDPAddrPort(b, srcAddr)
		if err != nil || n != len(b) {
			log.Error("failed to write packet", zap.Error(err))
			continue
		}
		if txts {
			// drain the error queue
			_, id, err := udp.ReadTXTimestamp(conn)
			if err == nil {
				if id != txID {
					log.Debug("unexpected tx timestamp id",
						zap.Uint32("id", id), zap.Uint32("expected", txID))
				}
				txID = id + 1
			}
		}
		mtrcs.reqsServed.Inc()
	}
}

// ListenAndServe serves requests on addr with several sockets sharing the
// port until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr netip.AddrPort) error {
	s.log().Info("server listening via IP", zap.Stringer("addr", addr))
	conns := make([]*net.UDPConn, 0, ipServerNumGoroutine)
	for range ipServerNumGoroutine {
		conn, err := reuseport.ListenPacket("udp", addr.String())
		if err != nil {
			for _, c := range conns {
				_ = c.Close()
			}
			return err
		}
		conns = append(conns, conn.(*net.UDPConn))
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, conn := range conns {
		g.Go(func() error {
			return s.Serve(ctx, conn)
		})
	}
	return g.Wait()
}
