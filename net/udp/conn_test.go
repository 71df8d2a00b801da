package udp_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"example.com/timesync/net/udp"
)

func TestConn(t *testing.T) {
	srv, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	go func() {
		buf := make([]byte, 64)
		for {
			n, addr, err := srv.ReadFromUDPAddrPort(buf)
			if err != nil {
				return
			}
			_, _ = srv.WriteToUDPAddrPort(buf[:n], addr)
		}
	}()

	remote := srv.LocalAddr().(*net.UDPAddr).AddrPort()
	c, err := udp.Dial(nil, netip.MustParseAddrPort("127.0.0.1:0"), remote, "", 0)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg := []byte("ping")
	if _, err := c.Send(ctx, msg); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	buf := make([]byte, 64)
	n, _, err := c.Recv(ctx, buf)
	if err != nil {
		t.Fatalf("Recv() failed: %v", err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Errorf("Recv() = %q, want %q", buf[:n], msg)
	}

	tctx, tcancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer tcancel()
	if _, _, err := c.Recv(tctx, buf); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Recv() = %v, want %v", err, context.DeadlineExceeded)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := c.Send(ctx, msg); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Send() = %v, want %v", err, net.ErrClosed)
	}
}

func TestSetDSCP(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := udp.SetDSCP(conn, 64); err == nil {
		t.Error("SetDSCP(64) succeeded")
	}
	if err := udp.SetDSCP(conn, 46); err != nil {
		t.Errorf("SetDSCP(46) failed: %v", err)
	}
}
