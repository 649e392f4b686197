package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	intentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_intents_total",
			Help: "Donation intents by result",
		},
		[]string{"result"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_notifications_total",
			Help: "Provider notifications by source, outcome and auth mode",
		},
		[]string{"source", "outcome", "mode"},
	)

	settlementsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "donation_settlements_total",
			Help: "Donations transitioned to successful",
		},
	)

	gatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_requests_total",
			Help: "Payment gateway calls by operation and result",
		},
		[]string{"operation", "result"},
	)

	gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_request_duration_seconds",
			Help:    "Payment gateway call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

func IntentCreated(result string) {
	intentsTotal.WithLabelValues(result).Inc()
}

func Notification(source, outcome, mode string) {
	notificationsTotal.WithLabelValues(source, outcome, mode).Inc()
}

func Settled() {
	settlementsTotal.Inc()
}

func HTTPRequest(method string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, statusClass(status)).Observe(d.Seconds())
}

// GatewayTimer measures one gateway call.
type GatewayTimer struct {
	operation string
	start     time.Time
}

func ObserveGateway(operation string) *GatewayTimer {
	return &GatewayTimer{operation: operation, start: time.Now()}
}

func (t *GatewayTimer) Done(result string) {
	gatewayRequestDuration.WithLabelValues(t.operation).Observe(time.Since(t.start).Seconds())
	gatewayRequestsTotal.WithLabelValues(t.operation, result).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
