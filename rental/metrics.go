package rental

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the rental collectors. A nil *Metrics records nothing.
type Metrics struct {
	started   prometheus.Counter
	finished  *prometheus.CounterVec
	failed    *prometheus.CounterVec
	fares     prometheus.Histogram
	payments  *prometheus.CounterVec
	inService prometheus.Gauge
}

// NewMetrics registers the rental collectors with reg. Collectors that are
// already registered, for example by a second service in tests, are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rental_rides_started_total",
			Help: "Rides started",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_rides_finished_total",
			Help: "Rides that reached a terminal state",
		}, []string{"status"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_operation_failures_total",
			Help: "Rental operations rejected, by operation and failed step",
		}, []string{"op", "step"}),
		fares: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rental_fare_amount",
			Help:    "Final fare of completed rides",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_payment_authorizations_total",
			Help: "Payment authorizations by result",
		}, []string{"result"}),
		inService: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rental_rides_in_progress",
			Help: "Rides currently active or paused",
		}),
	}

	var err error
	if m.started, err = register(reg, m.started); err != nil {
		return nil, err
	}
	if m.finished, err = register(reg, m.finished); err != nil {
		return nil, err
	}
	if m.failed, err = register(reg, m.failed); err != nil {
		return nil, err
	}
	if m.fares, err = register(reg, m.fares); err != nil {
		return nil, err
	}
	if m.payments, err = register(reg, m.payments); err != nil {
		return nil, err
	}
	if m.inService, err = register(reg, m.inService); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) rideStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
	m.inService.Inc()
}

func (m *Metrics) rideFinished(status string, fare float64) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(status).Inc()
	if status == "completed" {
		m.fares.Observe(fare)
	}
	m.inService.Dec()
}

func (m *Metrics) failure(op, step string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(op, step).Inc()
}

func (m *Metrics) payment(result string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(result).Inc()
}
