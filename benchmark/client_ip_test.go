package benchmark_test

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"testing"

	"example.com/timesync/benchmark"
	"example.com/timesync/core/server"
	"example.com/timesync/core/sync"
	"example.com/timesync/core/timebase"
	"example.com/timesync/driver/clock"
)

func init() {
	timebase.RegisterClock(clock.NewVirtualClock())
}

type stratum1 struct{}

func (stratum1) System() sync.SystemSnapshot {
	return sync.SystemSnapshot{Version: 1, Stratum: 1, UpdatedAt: timebase.Now()}
}

func TestRunIPBenchmark(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &server.Server{System: stratum1{}}
	go func() { _ = s.Serve(ctx, conn) }()

	r, err := benchmark.RunIPBenchmark(ctx, nil, timebase.Clock(), benchmark.Config{
		Local:        netip.MustParseAddrPort("127.0.0.1:0"),
		Remote:       conn.LocalAddr().(*net.UDPAddr).AddrPort(),
		NumClients:   2,
		NumExchanges: 5,
	})
	if err != nil {
		t.Fatalf("RunIPBenchmark() failed: %v", err)
	}
	if r.Exchanges == 0 || r.Exchanges+r.Failures != 10 {
		t.Errorf("RunIPBenchmark(): %d exchanges, %d failures, want 10 in total",
			r.Exchanges, r.Failures)
	}
	var out bytes.Buffer
	if err := r.Print(&out); err != nil || out.Len() == 0 {
		t.Errorf("Print() = %v", err)
	}
}
