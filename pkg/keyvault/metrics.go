package keyvault

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics records vault operation counts and latencies.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
// If the collectors are already registered on reg, the existing ones are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kvault_operations_total",
		Help: "Total number of Key Vault operations by resource, operation and outcome",
	}, []string{"resource", "operation", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kvault_operation_duration_seconds",
		Help:    "Latency of Key Vault operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource", "operation"})

	if reg != nil {
		var err error
		if operations, err = registerOrReuse(reg, operations); err != nil {
			return nil, err
		}
		if duration, err = registerOrReuse(reg, duration); err != nil {
			return nil, err
		}
	}

	return &Metrics{operations: operations, duration: duration}, nil
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
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

func (m *Metrics) observe(resource, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	switch Classify(err) {
	case KindNone:
	case KindNotFound:
		outcome = "not_found"
	default:
		outcome = "error"
	}
	m.operations.WithLabelValues(resource, operation, outcome).Inc()
	m.duration.WithLabelValues(resource, operation).Observe(time.Since(start).Seconds())
}

// track returns a func that records the outcome of one remote call.
// Use it as: defer track(cfg, ResourceSecret, "get", name)(&err)
func track(cfg Config, resource, operation, name string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		cfg.Metrics.observe(resource, operation, start, err)
		cfg.Logger.Debug("vault call",
			zap.String("resource", resource),
			zap.String("operation", operation),
			zap.String("name", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Stringer("result", Classify(err)),
		)
	}
}
