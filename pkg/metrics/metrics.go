// Package metrics holds the Prometheus collectors of the gateway.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vfd"

var (
	AdapterOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "adapter",
		Name:      "operations_total",
		Help:      "Adapter operations by protocol, operation and result.",
	}, []string{"protocol", "operation", "result"})

	AdapterLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "adapter",
		Name:      "operation_duration_seconds",
		Help:      "Adapter operation latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"protocol", "operation"})

	OpenConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "adapter",
		Name:      "open_connections",
		Help:      "Connection handles currently open.",
	}, []string{"protocol"})

	ParameterErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "adapter",
		Name:      "parameter_errors_total",
		Help:      "Parameters that failed to read or decode.",
	}, []string{"protocol"})

	PoolSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "sessions",
		Help:      "Device sessions held by the connection pool.",
	})

	PoolReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "reconnects_total",
		Help:      "Sessions re-established after idling or breaking.",
	})

	Readings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reader",
		Name:      "readings_total",
		Help:      "Readings captured by result.",
	}, []string{"result"})

	Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "command",
		Name:      "executed_total",
		Help:      "Drive commands by command and result.",
	}, []string{"command", "result"})
)

var registerOnce sync.Once

// Register adds the collectors to the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(AdapterOperations, AdapterLatency, OpenConnections, ParameterErrors,
			PoolSessions, PoolReconnects, Readings, Commands)
	})
}

func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveOperation records one adapter operation.
func ObserveOperation(protocol, operation string, start time.Time, err error) {
	AdapterOperations.WithLabelValues(protocol, operation, result(err)).Inc()
	AdapterLatency.WithLabelValues(protocol, operation).Observe(time.Since(start).Seconds())
}

func ObserveReading(err error) {
	Readings.WithLabelValues(result(err)).Inc()
}

func ObserveCommand(command string, success bool) {
	r := "success"
	if !success {
		r = "error"
	}
	Commands.WithLabelValues(command, r).Inc()
}
