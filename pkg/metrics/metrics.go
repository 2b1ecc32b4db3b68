package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciliation metrics
	PassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempo_operator_passes_total",
			Help: "Total number of reconciliation passes by resulting status level",
		},
		[]string{"status"},
	)

	PassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tempo_operator_pass_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempo_operator_triggers_total",
			Help: "Total number of pass triggers by source",
		},
		[]string{"source"},
	)

	TriggersCoalesced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tempo_operator_triggers_coalesced_total",
			Help: "Triggers merged into an already pending pass",
		},
	)

	// Relation metrics
	RelationPresence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tempo_operator_relation_presence",
			Help: "Normalized relation presence (1 for the current presence of each relation)",
		},
		[]string{"relation", "presence"},
	)

	// Workload metrics
	ConfigVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tempo_operator_config_version",
			Help: "Configuration version assigned in the last pass",
		},
	)

	AppliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempo_operator_applies_total",
			Help: "Total number of configuration applies by result",
		},
		[]string{"result"},
	)

	ReceiversEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tempo_operator_receivers_enabled",
			Help: "Number of enabled trace receivers",
		},
	)

	TLSEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tempo_operator_tls_enabled",
			Help: "Whether receivers are served over TLS (1 = enabled)",
		},
	)

	CertificateExpiry = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tempo_operator_certificate_expiry_timestamp_seconds",
			Help: "NotAfter of the served certificate as a unix timestamp, 0 without TLS",
		},
	)

	RoutesPublished = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tempo_operator_routes_published",
			Help: "Number of ingress routes currently published",
		},
	)

	// Peer metrics
	IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tempo_operator_is_leader",
			Help: "Whether this unit is the leader (1 = leader, 0 = follower)",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tempo_operator_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tempo_operator_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempo_operator_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tempo_operator_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(PassesTotal)
	prometheus.MustRegister(PassDuration)
	prometheus.MustRegister(TriggersTotal)
	prometheus.MustRegister(TriggersCoalesced)
	prometheus.MustRegister(RelationPresence)
	prometheus.MustRegister(ConfigVersion)
	prometheus.MustRegister(AppliesTotal)
	prometheus.MustRegister(ReceiversEnabled)
	prometheus.MustRegister(TLSEnabled)
	prometheus.MustRegister(CertificateExpiry)
	prometheus.MustRegister(RoutesPublished)
	prometheus.MustRegister(IsLeader)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBool sets a gauge to 1 or 0
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
