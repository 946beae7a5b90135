package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics regroupe les compteurs métier et HTTP. Un *Metrics nil est accepté partout.
type Metrics struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	ordersCreated prometheus.Counter
	ordersPaid    *prometheus.CounterVec
	cartClamped   prometheus.Counter
	webhookEvents *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boutique", Name: "http_requests_total", Help: "Requêtes HTTP par route et statut.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "boutique", Name: "http_request_duration_seconds", Help: "Durée des requêtes HTTP.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "boutique", Name: "orders_created_total", Help: "Commandes créées.",
		}),
		ordersPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boutique", Name: "orders_paid_total", Help: "Commandes passées à payé, par chemin.",
		}, []string{"path"}),
		cartClamped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "boutique", Name: "cart_clamped_total", Help: "Quantités de panier plafonnées au stock.",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boutique", Name: "webhook_events_total", Help: "Événements webhook reçus.",
		}, []string{"type", "outcome"}),
	}
	reg.MustRegister(m.httpRequests, m.httpDuration, m.ordersCreated, m.ordersPaid, m.cartClamped, m.webhookEvents)
	return m
}

func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) OrderPaid(path string) {
	if m == nil {
		return
	}
	m.ordersPaid.WithLabelValues(path).Inc()
}

func (m *Metrics) CartClamped() {
	if m == nil {
		return
	}
	m.cartClamped.Inc()
}

func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}
