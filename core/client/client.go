package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"example.com/timesync/base/metrics"
)

// Transport exchanges datagrams with a single remote server.
type Transport interface {
	// Send transmits b and returns its transmit timestamp, or the zero time
	// if none is available.
	Send(ctx context.Context, b []byte) (time.Time, error)
	// Recv reads the next datagram into b and returns its receive timestamp,
	// or the zero time if none is available. Recv returns ctx.Err() once ctx
	// is done.
	Recv(ctx context.Context, b []byte) (int, time.Time, error)
}

type clientMetrics struct {
	reqsSent       prometheus.Counter
	pktsReceived   prometheus.Counter
	pktsAuthFailed prometheus.Counter
	respsAccepted  prometheus.Counter
	respsIgnored   prometheus.Counter
	respsRejected  prometheus.Counter
	timeouts       prometheus.Counter
	peerOffset     *prometheus.GaugeVec
	peerPoll       *prometheus.GaugeVec
	peerReach      *prometheus.GaugeVec
}

func newClientMetrics() *clientMetrics {
	return &clientMetrics{
		reqsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientReqsSentN,
			Help: metrics.ClientReqsSentH,
		}),
		pktsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientPktsReceivedN,
			Help: metrics.ClientPktsReceivedH,
		}),
		pktsAuthFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientPktsAuthFailedN,
			Help: metrics.ClientPktsAuthFailedH,
		}),
		respsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientRespsAcceptedN,
			Help: metrics.ClientRespsAcceptedH,
		}),
		respsIgnored: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientRespsIgnoredN,
			Help: metrics.ClientRespsIgnoredH,
		}),
		respsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientRespsRejectedN,
			Help: metrics.ClientRespsRejectedH,
		}),
		timeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.ClientTimeoutsN,
			Help: metrics.ClientTimeoutsH,
		}),
		peerOffset: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.PeerOffsetN,
			Help: metrics.PeerOffsetH,
		}, []string{"peer"}),
		peerPoll: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.PeerPollN,
			Help: metrics.PeerPollH,
		}, []string{"peer"}),
		peerReach: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.PeerReachN,
			Help: metrics.PeerReachH,
		}, []string{"peer"}),
	}
}

var (
	clientMtrcs atomic.Pointer[clientMetrics]
)

func init() {
	clientMtrcs.Store(newClientMetrics())
}
