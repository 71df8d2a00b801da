package server_test

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/core/client"
	"example.com/timesync/core/peer"
	"example.com/timesync/core/server"
	"example.com/timesync/core/sync"
	"example.com/timesync/core/timebase"
	"example.com/timesync/driver/clock"
	"example.com/timesync/net/auth"
	"example.com/timesync/net/ntp"
	"example.com/timesync/net/udp"
)

func init() {
	timebase.RegisterClock(clock.NewVirtualClock())
}

type staticSystem struct {
	s sync.SystemSnapshot
}

func (s staticSystem) System() sync.SystemSnapshot { return s.s }

func synchronized() sync.SystemSnapshot {
	return sync.SystemSnapshot{
		Version:     1,
		Stratum:     2,
		ReferenceID: ntp.ReferenceIDFromString("GPS"),
		Poll:        6,
		Time: sync.TimeSnapshot{
			RootDelay:      ntptime.DurationFromSeconds(0.001),
			RootDispersion: ntptime.DurationFromSeconds(0.002),
			Leap:           ntp.LeapIndicatorNoWarning,
		},
		UpdatedAt: timebase.Now(),
	}
}

func TestHandleRequest(t *testing.T) {
	var req ntp.Packet
	req.SetVersion(ntp.VersionMax)
	req.SetMode(ntp.ModeClient)
	req.Poll = 4
	req.TransmitTime = 0x0123456789abcdef

	now := timebase.Now()
	rxt := now.Wall()
	txt := rxt.Add(ntptime.DurationFromSeconds(0.0001))

	var resp ntp.Packet
	server.HandleRequest(sync.SystemSnapshot{}, now, -20, &req, rxt, txt, &resp)
	if resp.LeapIndicator() != ntp.LeapIndicatorUnknown || resp.Stratum != ntp.StratumUnsync {
		t.Errorf("unsynchronized response: leap %d, stratum %d", resp.LeapIndicator(), resp.Stratum)
	}

	s := synchronized()
	server.HandleRequest(s, now, -20, &req, rxt, txt, &resp)
	if resp.Mode() != ntp.ModeServer || resp.Version() != ntp.VersionMax {
		t.Errorf("response mode %d, version %d", resp.Mode(), resp.Version())
	}
	if resp.OriginTime != req.TransmitTime || resp.ReceiveTime != rxt || resp.TransmitTime != txt {
		t.Errorf("response timestamps = %v, %v, %v", resp.OriginTime, resp.ReceiveTime, resp.TransmitTime)
	}
	if resp.Stratum != 2 || resp.ReferenceID != s.ReferenceID || resp.Poll != 6 {
		t.Errorf("response stratum %d, refid %x, poll %d", resp.Stratum, resp.ReferenceID, resp.Poll)
	}
	if resp.RootDelay != s.Time.RootDelay.Short() || resp.RootDispersionDuration() < s.Time.RootDispersion-ntptime.DurationFromSeconds(1e-4) {
		t.Errorf("response root delay %v, root dispersion %v",
			resp.RootDelayDuration(), resp.RootDispersionDuration())
	}
}

func startServer(t *testing.T, a auth.Authenticator) netip.AddrPort {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &server.Server{System: staticSystem{synchronized()}, Auth: a}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx, conn)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func newClient(t *testing.T, remote netip.AddrPort, a auth.Authenticator) *client.PeerClient {
	t.Helper()
	conn, err := udp.Dial(nil, netip.MustParseAddrPort("127.0.0.1:0"), remote, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	cfg := peer.DefaultConfig(remote.String())
	cfg.Auth = a
	return &client.PeerClient{
		Clock:      timebase.Clock(),
		Peer:       peer.New(cfg),
		Transport:  conn,
		MaxTimeout: time.Second,
	}
}

func TestLoopback(t *testing.T) {
	c := newClient(t, startServer(t, nil), nil)
	u, err := c.Exchange(context.Background())
	if err != nil {
		t.Fatalf("Exchange() failed: %v", err)
	}
	m := u.Measurement
	if m.Stratum != 2 || m.Leap != ntp.LeapIndicatorNoWarning {
		t.Errorf("Exchange(): stratum %d, leap %d", m.Stratum, m.Leap)
	}
	if m.Offset.Abs() > ntptime.DurationFromSeconds(0.1) {
		t.Errorf("Exchange(): offset %v over loopback", m.Offset)
	}
}

func TestLoopbackAuth(t *testing.T) {
	c2s := bytes.Repeat([]byte{1}, 32)
	s2c := bytes.Repeat([]byte{2}, 32)
	srvAuth, err := auth.NewSIV(s2c, c2s)
	if err != nil {
		t.Fatal(err)
	}
	cltAuth, err := auth.NewSIV(c2s, s2c)
	if err != nil {
		t.Fatal(err)
	}
	remote := startServer(t, srvAuth)

	c := newClient(t, remote, cltAuth)
	if _, err := c.Exchange(context.Background()); err != nil {
		t.Fatalf("Exchange() failed: %v", err)
	}

	wrong, err := auth.NewSIV(c2s, c2s)
	if err != nil {
		t.Fatal(err)
	}
	c = newClient(t, remote, wrong)
	c.MaxTimeout = 100 * time.Millisecond
	if _, err := c.Exchange(context.Background()); err == nil {
		t.Error("Exchange() succeeded with wrong key")
	}
}
