package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "warelay_http_requests_total", Help: "Relay HTTP requests"},
		[]string{"route", "status"},
	)
	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "warelay_webhooks_received_total", Help: "Webhooks recorded, by event type"},
		[]string{"event"},
	)
	Simulations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "warelay_simulations_total", Help: "Simulated webhook events"},
		[]string{"event"},
	)
	ClientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "warelay_ws_clients", Help: "Connected push channel clients"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(HTTPRequests, WebhooksReceived, Simulations, ClientsConnected)
}
