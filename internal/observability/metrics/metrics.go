package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PortalMetrics exposes counters/histograms for the payment pages and the
// remote API they call.
type PortalMetrics struct {
	submissionsTotal *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	activePages      prometheus.Gauge
}

func NewPortalMetrics(reg prometheus.Registerer) *PortalMetrics {
	m := &PortalMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "payments",
			Name:      "submissions_total",
			Help:      "Total payment submissions by method and outcome",
		}, []string{"method", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Latency of portal API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		activePages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "portal",
			Name:      "payment_pages_active",
			Help:      "Mounted payment pages held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.gatewayLatency, m.activePages)
	return m
}

func (m *PortalMetrics) ObserveSubmission(method, outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveGatewayRequest records one API call. A status of 0 means the request
// never got a response.
func (m *PortalMetrics) ObserveGatewayRequest(operation string, statusCode int, seconds float64) {
	if m == nil {
		return
	}
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.gatewayLatency.WithLabelValues(operation, status).Observe(seconds)
}

func (m *PortalMetrics) SetActivePages(n int) {
	if m == nil {
		return
	}
	m.activePages.Set(float64(n))
}
