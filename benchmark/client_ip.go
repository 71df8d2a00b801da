package benchmark

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	stdsync "sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/base/timebase"
	"example.com/timesync/base/timemath"
	"example.com/timesync/core/client"
	"example.com/timesync/core/peer"
	"example.com/timesync/net/udp"
)

const (
	maxRoundTripMicros = 50_000
	responseTimeout    = time.Second
)

// Config describes an IP benchmark run.
type Config struct {
	Local        netip.AddrPort
	Remote       netip.AddrPort
	NumClients   int
	NumExchanges int
	DSCP         uint8
}

// Report summarizes a benchmark run.
type Report struct {
	Exchanges    int
	Failures     int
	Elapsed      time.Duration
	MedianOffset time.Duration
	Histo        *hdrhistogram.Histogram
}

func (r Report) Print(w io.Writer) error {
	_, err := fmt.Fprintf(w, "exchanges: %d, failures: %d, elapsed: %v, median offset: %v\n",
		r.Exchanges, r.Failures, r.Elapsed, r.MedianOffset)
	if err != nil {
		return err
	}
	_, err = r.Histo.PercentilesPrint(w, 1, 1.0)
	return err
}

// RunIPBenchmark performs back to back exchanges with cfg.Remote from
// cfg.NumClients concurrent clients and records round trip delays in
// microseconds.
func RunIPBenchmark(ctx context.Context, log *zap.Logger, clk timebase.LocalClock,
	cfg Config) (Report, error) {
	if cfg.NumClients <= 0 || cfg.NumExchanges <= 0 {
		panic("invalid benchmark configuration")
	}
	var mu stdsync.Mutex
	r := Report{Histo: hdrhistogram.New(1, maxRoundTripMicros, 5)}
	var offsets []time.Duration

	t0 := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := range cfg.NumClients {
		g.Go(func() error {
			conn, err := udp.Dial(log, cfg.Local, cfg.Remote, "", cfg.DSCP)
			if err != nil {
				return err
			}
			defer conn.Close()
			pcfg := peer.DefaultConfig(fmt.Sprintf("%s#%d", cfg.Remote, i))
			pcfg.PollLimits = ntptime.PollIntervalLimits{
				Min: ntptime.MinPollInterval, Max: ntptime.MinPollInterval}
			pcfg.MinResponseInterval = 0
			c := &client.PeerClient{
				Log:        log,
				Clock:      clk,
				Peer:       peer.New(pcfg),
				Transport:  conn,
				MaxTimeout: responseTimeout,
				Histo:      hdrhistogram.New(1, maxRoundTripMicros, 5),
			}
			var offs []time.Duration
			failures := 0
			for range cfg.NumExchanges {
				u, err := c.Exchange(ctx)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err != nil {
					failures++
					continue
				}
				offs = append(offs, u.Measurement.Offset.Std())
			}
			mu.Lock()
			defer mu.Unlock()
			r.Histo.Merge(c.Histo)
			r.Exchanges += len(offs)
			r.Failures += failures
			offsets = append(offsets, offs...)
			return nil
		})
	}
	err := g.Wait()
	r.Elapsed = time.Since(t0)
	if len(offsets) != 0 {
		r.MedianOffset = timemath.Median(offsets)
	}
	return r, err
}
