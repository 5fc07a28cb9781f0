// Package observability exposes pipeline metrics to Prometheus.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/commentmail/pkg/core"
)

const namespace = "commentmail"

// Metrics records trigger results and delivery outcomes. It implements
// notify.Recorder and core.DeliveryListener.
type Metrics struct {
	TriggerResults       *prometheus.CounterVec
	Deliveries           *prometheus.CounterVec
	RecipientsPerMessage prometheus.Histogram
}

var _ core.DeliveryListener = (*Metrics)(nil)

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TriggerResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trigger_results_total",
				Help:      "Comment events handled, by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Messages processed by the mail transport, by status",
			},
			[]string{"status"},
		),
		RecipientsPerMessage: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "message_recipients",
				Help:      "Number of recipients per delivered message",
				Buckets:   []float64{1, 2, 3, 5, 10},
			},
		),
	}
}

// Observe implements notify.Recorder.
func (m *Metrics) Observe(trigger, result string) {
	m.TriggerResults.WithLabelValues(trigger, result).Inc()
}

// OnDelivery implements core.DeliveryListener.
func (m *Metrics) OnDelivery(_ context.Context, outcome core.DeliveryOutcome) {
	m.Deliveries.WithLabelValues(string(outcome.Status)).Inc()
	if outcome.Status == core.DeliverySent {
		m.RecipientsPerMessage.Observe(float64(len(outcome.Recipients)))
	}
}

// NewServer returns an HTTP server exposing /metrics from gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
