package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OTPRequests counts OTP issuance requests by result (issued|invalid|rate_limited|error).
	OTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_otp_requests_total",
			Help: "Total number of OTP issuance requests",
		},
		[]string{"result"},
	)

	// OTPConfirmations counts OTP confirmation attempts by result.
	OTPConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_otp_confirmations_total",
			Help: "Total number of OTP confirmation attempts",
		},
		[]string{"result"},
	)

	// OTPDeliveries counts outbound OTP messages by result (sent|failed|disabled).
	OTPDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_otp_deliveries_total",
			Help: "Total number of OTP delivery attempts",
		},
		[]string{"result"},
	)

	// OAuthLogins counts OAuth completions by provider and result.
	OAuthLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_oauth_logins_total",
			Help: "Total number of OAuth login completions",
		},
		[]string{"provider", "result"},
	)

	// SessionsIssued counts session tokens minted.
	SessionsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authcore_sessions_issued_total",
			Help: "Total number of sessions issued",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authcore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPInFlight tracks requests currently being served.
	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authcore_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// MaintenancePurged counts rows removed by background maintenance jobs.
	MaintenancePurged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_maintenance_purged_total",
			Help: "Rows removed by maintenance jobs",
		},
		[]string{"job"},
	)
)
