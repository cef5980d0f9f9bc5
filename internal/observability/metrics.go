package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_client", Name: "api_requests_total", Help: "Backend API calls by endpoint and outcome"},
		[]string{"method", "endpoint", "status"},
	)
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_client",
			Name:      "api_request_duration_seconds",
			Help:      "Backend API latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	PollsTotal       = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_client", Name: "ride_polls_total", Help: "Ride status polls by result"}, []string{"result"})
	PushEventsTotal  = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_client", Name: "push_events_total", Help: "Real-time events received by name"}, []string{"event"})
	EmitsTotal       = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_client", Name: "emits_total", Help: "Real-time events emitted by name and result"}, []string{"event", "result"})
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_client", Name: "ride_transitions_total", Help: "Effective ride status transitions"}, []string{"to", "origin"})
	WaitingCharges   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_client", Name: "waiting_charge_submissions_total", Help: "Waiting charge submissions by result"}, []string{"result"})
	OffersTotal      = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_client", Name: "offers_total", Help: "Ride offers by resolution"}, []string{"resolution"})

	ChannelDials = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_client", Name: "channel_dials_total", Help: "Real-time channel dials by transport mode and result"}, []string{"mode", "result"})

	JournalWrites = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_journal", Name: "writes_total", Help: "Transition journal writes by result"}, []string{"result"})
	JournalLag    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_journal", Name: "consumer_lag", Help: "Kafka consumer lag reported by the reader"})

	ViewClients = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_client", Name: "view_clients", Help: "Connected view websocket clients"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_client", Name: "http_requests_total", Help: "Total view server HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_client",
			Name:      "http_request_duration_seconds",
			Help:      "View server HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
