package sync

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"example.com/timesync/base/metrics"
)

type syncMetrics struct {
	clockErrors  prometheus.Counter
	degraded     prometheus.Counter
	falsetickers prometheus.Gauge
	frequency    prometheus.Gauge
	jitter       prometheus.Gauge
	offset       prometheus.Gauge
	steps        prometheus.Counter
	survivors    prometheus.Gauge
}

func newSyncMetrics() *syncMetrics {
	return &syncMetrics{
		clockErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.SyncClockErrorsN,
			Help: metrics.SyncClockErrorsH,
		}),
		degraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.SyncDegradedN,
			Help: metrics.SyncDegradedH,
		}),
		falsetickers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: metrics.SyncFalsetickersN,
			Help: metrics.SyncFalsetickersH,
		}),
		frequency: promauto.NewGauge(prometheus.GaugeOpts{
			Name: metrics.SyncFrequencyN,
			Help: metrics.SyncFrequencyH,
		}),
		jitter: promauto.NewGauge(prometheus.GaugeOpts{
			Name: metrics.SyncJitterN,
			Help: metrics.SyncJitterH,
		}),
		offset: promauto.NewGauge(prometheus.GaugeOpts{
			Name: metrics.SyncOffsetN,
			Help: metrics.SyncOffsetH,
		}),
		steps: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.SyncStepsN,
			Help: metrics.SyncStepsH,
		}),
		survivors: promauto.NewGauge(prometheus.GaugeOpts{
			Name: metrics.SyncSurvivorsN,
			Help: metrics.SyncSurvivorsH,
		}),
	}
}

var syncMtrcs atomic.Pointer[syncMetrics]

func init() {
	syncMtrcs.Store(newSyncMetrics())
}

func (m *syncMetrics) observe(ev Evaluation) {
	var n, f int
	for _, d := range ev.Peers {
		switch d.Verdict {
		case Survivor:
			n++
		case Falseticker:
			f++
		}
	}
	m.survivors.Set(float64(n))
	m.falsetickers.Set(float64(f))
	if ev.Status == Degraded {
		m.degraded.Inc()
	}
	if ev.Update == nil {
		return
	}
	m.offset.Set(ev.Update.Offset.Seconds())
	m.frequency.Set(ev.Update.FrequencyPPM)
	m.jitter.Set(ev.Update.System.Time.Jitter.Seconds())
	if ev.Update.Action == Step {
		m.steps.Inc()
	}
}
