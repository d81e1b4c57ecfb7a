// Package metrics holds the Prometheus collectors of the pod.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution outcomes.
const (
	OutcomeLocalHit  = "local_hit"
	OutcomeRemoteHit = "remote_hit"
	OutcomeFetched   = "fetched"
	OutcomeNotFound  = "not_found"
	OutcomeInvalid   = "invalid"
	OutcomeTimeout   = "timeout"
	OutcomeHeld      = "held"
)

type Metrics struct {
	Resolutions   *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	HostsHeld     prometheus.Counter
	Destroyed     *prometheus.CounterVec
	RPCs          *prometheus.CounterVec
	RPCDuration   *prometheus.HistogramVec
}

// New registers every collector on reg. A nil reg keeps them unregistered,
// which tests use to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diaspora_people_resolutions_total",
			Help: "Person resolutions by lookup mode and outcome",
		}, []string{"mode", "outcome"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diaspora_federation_fetch_duration_seconds",
			Help:    "Duration of remote profile fetches",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		HostsHeld: f.NewCounter(prometheus.CounterOpts{
			Name: "diaspora_federation_holddowns_total",
			Help: "Times a remote host was put on hold after repeated failures",
		}),
		Destroyed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diaspora_people_destroyed_total",
			Help: "Person destructions by result",
		}, []string{"result"}),
		RPCs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "diaspora_grpc_requests_total",
			Help: "gRPC requests by method and code",
		}, []string{"method", "code"}),
		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diaspora_grpc_request_duration_seconds",
			Help:    "gRPC request latency by method",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) ObserveResolution(mode, outcome string) {
	m.Resolutions.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) ObserveFetch(result string, d time.Duration) {
	m.FetchDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) IncrementHostsHeld() {
	m.HostsHeld.Inc()
}

func (m *Metrics) ObserveDestroy(result string) {
	m.Destroyed.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRPC(method, code string, d time.Duration) {
	m.RPCs.WithLabelValues(method, code).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(d.Seconds())
}
