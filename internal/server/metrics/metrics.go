// Package metrics exposes the Prometheus counters of the auth core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authkeeper"

// Result label values.
const (
	ResultSuccess      = "success"
	ResultUnauthorized = "unauthorized"
	ResultError        = "error"
)

// Metrics owns a private registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	Login                  *prometheus.CounterVec
	Refresh                *prometheus.CounterVec
	Logout                 prometheus.Counter
	BlacklistCheckFailures prometheus.Counter
	CleanupDeleted         *prometheus.CounterVec
	CleanupFailures        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Login: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		Refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh-token rotations by result.",
		}, []string{"result"}),
		Logout: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logout_total",
			Help:      "Successful logouts.",
		}),
		BlacklistCheckFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blacklist_check_failures_total",
			Help:      "Denylist lookups that failed and were treated as not blacklisted.",
		}),
		CleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deleted_total",
			Help:      "Rows removed by the cleanup sweeps.",
		}, []string{"table"}),
		CleanupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Failed cleanup sweeps.",
		}, []string{"table"}),
	}

	m.registry.MustRegister(
		m.Login, m.Refresh, m.Logout, m.BlacklistCheckFailures,
		m.CleanupDeleted, m.CleanupFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
