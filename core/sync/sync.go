package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/base/timebase"
	"example.com/timesync/core/peer"
)

const (
	DefaultEvalInterval = 2 * time.Second

	driftSaveInterval = 1 * time.Hour
)

// PeerRunner drives the exchanges with a single peer. Run publishes a
// snapshot after every exchange and applies the latest poll hint before
// scheduling the next one. It returns nil once ctx is done.
type PeerRunner interface {
	ID() string
	Run(ctx context.Context, snapshots chan<- peer.Snapshot,
		hints <-chan ntptime.PollInterval) error
}

// Engine runs the peers concurrently and periodically feeds their snapshots
// to the controller, applying the resulting updates to the local clock.
type Engine struct {
	Log        *zap.Logger
	Clock      timebase.LocalClock
	Controller Controller
	Peers      []PeerRunner
	// Interval is the time between two evaluations.
	Interval time.Duration
	// Evaluations are triggered early once this many peer snapshots arrived
	// since the last one. Zero disables early evaluations.
	MinChangedPeers int
	// DriftFile persists the frequency correction if not empty.
	DriftFile string
	// DryRun disables clock adjustments.
	DryRun bool

	system    atomic.Pointer[SystemSnapshot]
	lastSaved ntptime.Instant
	// pending is the last update that failed to apply.
	pending *StateUpdate
}

// System returns the most recently published system snapshot. It is safe to
// call concurrently with Run.
func (e *Engine) System() SystemSnapshot {
	s := e.system.Load()
	if s == nil {
		return e.Controller.SystemSnapshot()
	}
	return *s
}

func (e *Engine) Run(ctx context.Context) error {
	if e.Clock == nil || e.Controller == nil {
		panic("invalid engine configuration")
	}
	if e.Log == nil {
		e.Log = zap.NewNop()
	}
	if e.Interval <= 0 {
		e.Interval = DefaultEvalInterval
	}
	s := e.Controller.SystemSnapshot()
	e.system.Store(&s)

	g, ctx := errgroup.WithContext(ctx)
	snapshots := make(chan peer.Snapshot, len(e.Peers))
	hints := make([]chan ntptime.PollInterval, len(e.Peers))
	for i, p := range e.Peers {
		hints[i] = make(chan ntptime.PollInterval, 1)
		g.Go(func() error {
			return p.Run(ctx, snapshots, hints[i])
		})
	}
	g.Go(func() error {
		return e.evaluate(ctx, snapshots, hints)
	})
	return g.Wait()
}

func (e *Engine) evaluate(ctx context.Context, snapshots <-chan peer.Snapshot,
	hints []chan ntptime.PollInterval) error {
	idx := make(map[string]int, len(e.Peers))
	current := make([]peer.Snapshot, len(e.Peers))
	for i, p := range e.Peers {
		idx[p.ID()] = i
		current[i] = peer.Snapshot{ID: p.ID()}
	}

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()
	changed := 0
	for {
		select {
		case <-ctx.Done():
			e.saveDrift()
			return nil
		case s := <-snapshots:
			i, ok := idx[s.ID]
			if !ok {
				e.Log.Error("snapshot from unknown peer", zap.String("peer", s.ID))
				continue
			}
			current[i] = s
			changed++
			if e.MinChangedPeers <= 0 || changed < e.MinChangedPeers {
				continue
			}
		case <-ticker.C:
		}
		changed = 0

		ev := e.Controller.Evaluate(e.Clock.Now(), current)
		syncMtrcs.Load().observe(ev)
		for i, d := range ev.Peers {
			hint(hints[i], d.Poll)
		}
		u := ev.Update
		if u == nil && ev.Status == Synchronized {
			u = e.pending
		}
		if u == nil {
			e.Log.Debug("no clock update", zap.Stringer("status", ev.Status))
			continue
		}
		e.apply(*u)
	}
}

func (e *Engine) apply(u StateUpdate) {
	if !e.DryRun {
		err := Apply(e.Clock, u)
		if err != nil {
			syncMtrcs.Load().clockErrors.Inc()
			e.Log.Error("failed to apply clock update",
				zap.Stringer("action", u.Action),
				zap.Bool("permission", errors.Is(err, timebase.ErrPermission)),
				zap.Bool("rejected", errors.Is(err, timebase.ErrRejected)),
				zap.Error(err))
			e.pending = &u
			return
		}
	}
	e.pending = nil
	s := u.System
	e.system.Store(&s)
	e.Log.Info("clock updated",
		zap.Stringer("action", u.Action),
		zap.Stringer("offset", u.Offset),
		zap.Float64("freq", u.FrequencyPPM),
		zap.Uint8("stratum", s.Stratum),
		zap.Bool("dryrun", e.DryRun))

	now := e.Clock.Now()
	if e.lastSaved.IsZero() || now.Since(e.lastSaved) >= driftSaveInterval {
		e.saveDrift()
		e.lastSaved = now
	}
}

func (e *Engine) saveDrift() {
	if e.DriftFile == "" || e.DryRun {
		return
	}
	ppm := e.System().Time.Frequency
	if err := SaveDrift(e.DriftFile, ppm); err != nil {
		e.Log.Info("failed to save drift file",
			zap.String("file", e.DriftFile), zap.Error(err))
	}
}

// hint replaces a pending poll hint with p.
func hint(c chan ntptime.PollInterval, p ntptime.PollInterval) {
	select {
	case <-c:
	default:
	}
	c <- p
}
