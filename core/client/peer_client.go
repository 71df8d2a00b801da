package client

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"go.uber.org/zap"

	"example.com/timesync/base/crypto"
	"example.com/timesync/base/ntptime"
	"example.com/timesync/base/timebase"
	"example.com/timesync/core/peer"
	"example.com/timesync/net/ntp"
)

const (
	recvBufLen = 1024
)

// PeerClient drives a peer over a transport.
type PeerClient struct {
	Log       *zap.Logger
	Clock     timebase.LocalClock
	Peer      *peer.Peer
	Transport Transport
	// MaxTimeout caps the time to wait for a response. Zero means the current
	// poll interval.
	MaxTimeout time.Duration
	// Histo records round trip delays in microseconds if not nil.
	Histo *hdrhistogram.Histogram
}

func (c *PeerClient) ID() string {
	return c.Peer.ID()
}

// Exchange performs a single request/response exchange. It returns
// ErrTransportClosed if the transport is unusable; the peer is then marked
// unreachable.
func (c *PeerClient) Exchange(ctx context.Context) (peer.Update, error) {
	log, mtrcs := c.log(), clientMtrcs.Load()

	req, err := c.Peer.Poll(c.Clock.Now())
	if err != nil {
		return peer.Update{}, err
	}
	timeout := req.Timeout
	if c.MaxTimeout > 0 {
		timeout = min(timeout, c.MaxTimeout)
	}
	xctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	txTime, err := c.Transport.Send(xctx, req.Payload)
	if err != nil {
		return peer.Update{}, c.fail(ctx, log, err)
	}
	mtrcs.reqsSent.Inc()
	if !txTime.IsZero() {
		_ = c.Peer.MarkSent(req.ID, ntptime.TimestampFromTime(txTime))
	}

	buf := make([]byte, recvBufLen)
	for {
		n, rxTime, err := c.Transport.Recv(xctx, buf)
		if err != nil {
			return peer.Update{}, c.fail(ctx, log, err)
		}
		mtrcs.pktsReceived.Inc()
		rx := c.Clock.Now()
		if !rxTime.IsZero() {
			rx = ntptime.NewInstant(rx.Mono(), ntptime.TimestampFromTime(rxTime), rx.Epoch())
		}

		u, err := c.Peer.HandleResponse(buf[:n], rx)
		switch {
		case err == nil:
			mtrcs.respsAccepted.Inc()
			log.Debug("accepted response",
				zap.Stringer("offset", u.Measurement.Offset),
				zap.Stringer("delay", u.Measurement.Delay),
				zap.Uint8("stratum", u.Measurement.Stratum),
				zap.String("refid", ntp.ReferenceIDString(u.Measurement.ReferenceID)))
			if c.Histo != nil {
				_ = c.Histo.RecordValue(u.Measurement.Delay.Std().Microseconds())
			}
			return u, nil
		case errors.Is(err, peer.AuthenticationFailed):
			mtrcs.pktsAuthFailed.Inc()
			log.Info("failed to authenticate response", zap.Error(err))
		case peer.IsRejected(err):
			mtrcs.respsRejected.Inc()
			log.Info("rejected response", zap.Error(err))
			return peer.Update{}, err
		case peer.IsIgnored(err):
			mtrcs.respsIgnored.Inc()
			log.Debug("ignored response", zap.Error(err))
			if c.Peer.State() != peer.AwaitingResponse {
				return peer.Update{}, err
			}
		default:
			return peer.Update{}, err
		}
	}
}

// fail ends the outstanding exchange after a transport error.
func (c *PeerClient) fail(ctx context.Context, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, ErrTransportClosed):
		log.Error("transport closed", zap.Error(err))
		c.Peer.MarkUnreachable()
		return err
	case ctx.Err() != nil:
		c.Peer.Abandon()
		return ctx.Err()
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		log.Info("failed to exchange packets", zap.Error(err))
	}
	clientMtrcs.Load().timeouts.Inc()
	_ = c.Peer.HandleTimeout()
	return errTimeout
}

// Run polls the peer until ctx is done, publishing a snapshot after every
// exchange and applying poll hints.
func (c *PeerClient) Run(ctx context.Context, snapshots chan<- peer.Snapshot,
	hints <-chan ntptime.PollInterval) error {
	log, mtrcs := c.log(), clientMtrcs.Load()

	// spread the first requests of all peers over the first poll interval
	n, err := crypto.RandIntn(ctx, max(1, int(c.Peer.PollInterval().Duration()/time.Millisecond)))
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	wait := time.Duration(n) * time.Millisecond
	for {
		if !c.sleep(ctx, wait, hints) {
			return nil
		}
		_, err := c.Exchange(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s := c.Peer.Snapshot()
		mtrcs.peerOffset.WithLabelValues(s.ID).Set(s.Offset.Seconds())
		mtrcs.peerPoll.WithLabelValues(s.ID).Set(float64(s.Poll))
		mtrcs.peerReach.WithLabelValues(s.ID).Set(float64(s.Reach))
		select {
		case snapshots <- s:
		case <-ctx.Done():
			return nil
		}
		if errors.Is(err, ErrTransportClosed) {
			log.Error("peer unreachable", zap.Error(err))
			return nil
		}
		wait = c.Peer.PollInterval().Duration()
	}
}

func (c *PeerClient) sleep(ctx context.Context, d time.Duration,
	hints <-chan ntptime.PollInterval) bool {
	select {
	case p := <-hints:
		c.Peer.SetPollHint(p)
	default:
	}
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case p := <-hints:
			c.Peer.SetPollHint(p)
		case <-t.C:
			return true
		}
	}
}

func (c *PeerClient) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log.With(zap.String("peer", c.Peer.ID()))
}

// Result is the outcome of a one-shot measurement.
type Result struct {
	Peer   string
	Update peer.Update
	Err    error
}

// MeasureOnce performs one exchange with every client concurrently and
// returns the results in order.
func MeasureOnce(ctx context.Context, cs []*PeerClient) []Result {
	type indexed struct {
		i int
		r Result
	}
	rc := make(chan indexed, len(cs))
	for i, c := range cs {
		go func() {
			u, err := c.Exchange(ctx)
			rc <- indexed{i, Result{Peer: c.ID(), Update: u, Err: err}}
		}()
	}
	rs := make([]Result, len(cs))
	for range cs {
		x := <-rc
		rs[x.i] = x.r
	}
	return rs
}

// String returns a one-line summary of r.
func (r Result) String() string {
	if r.Err != nil {
		return r.Peer + ": " + r.Err.Error()
	}
	m := r.Update.Measurement
	return r.Peer + ": offset " + m.Offset.String() +
		" delay " + m.Delay.String() +
		" stratum " + strconv.Itoa(int(m.Stratum)) +
		" refid " + ntp.ReferenceIDString(m.ReferenceID)
}
