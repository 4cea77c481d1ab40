package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking and sync flows.
type SchedulingMetrics struct {
	bookingOps      *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	channelRenewals *prometheus.CounterVec
	slotsGenerated  prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedcore",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking ledger operations by outcome",
		}, []string{"operation", "status"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedcore",
			Subsystem: "webhooks",
			Name:      "events_total",
			Help:      "Inbound calendar webhook notifications",
		}, []string{"resource_state", "status"}),
		channelRenewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedcore",
			Subsystem: "webhooks",
			Name:      "channel_renewals_total",
			Help:      "Webhook channel renewal attempts",
		}, []string{"status"}),
		slotsGenerated: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "schedcore",
			Subsystem: "slots",
			Name:      "generated_per_run",
			Help:      "Slots persisted per generation run",
			Buckets:   []float64{0, 1, 8, 16, 32, 64, 128, 256, 512},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingOps, m.webhookEvents, m.channelRenewals, m.slotsGenerated)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(operation, status string) {
	if m == nil {
		return
	}
	m.bookingOps.WithLabelValues(operation, status).Inc()
}

func (m *SchedulingMetrics) ObserveWebhook(resourceState, status string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(resourceState, status).Inc()
}

func (m *SchedulingMetrics) ObserveRenewal(status string) {
	if m == nil {
		return
	}
	m.channelRenewals.WithLabelValues(status).Inc()
}

func (m *SchedulingMetrics) ObserveSlotsGenerated(count int) {
	if m == nil {
		return
	}
	m.slotsGenerated.Observe(float64(count))
}
