package api

import "github.com/prometheus/client_golang/prometheus"

var (
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "waconsole_api_requests_total", Help: "Requests sent to the WhatsApp API"},
		[]string{"endpoint", "status"},
	)
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "waconsole_api_request_seconds", Help: "WhatsApp API request latency"},
		[]string{"endpoint"},
	)
)

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Requests, RequestLatency)
}
