// Package metrics wires an optional Prometheus exporter for the server:
// connected clients, commands processed, replication offset, and keyspace
// size, in the style of the redis_exporter's metricMapCounters/
// metricMapGauges tables.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every gauge/counter redikit exports.
type Metrics struct {
	ConnectedClients prometheus.Gauge
	CommandsTotal    *prometheus.CounterVec
	ReplOffsetBytes  prometheus.Gauge
	KeyspaceKeys     prometheus.Gauge
}

// New registers and returns the metric set against reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "redikit_connected_clients",
			Help: "Number of currently connected client sockets.",
		}),
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "redikit_commands_processed_total",
			Help: "Total commands processed, labeled by command name.",
		}, []string{"cmd"}),
		ReplOffsetBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "redikit_repl_offset_bytes",
			Help: "Current master replication offset in bytes.",
		}),
		KeyspaceKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "redikit_keyspace_keys",
			Help: "Number of live keys in the value store.",
		}),
	}
}

// ObserveCommand increments the per-command counter.
func (m *Metrics) ObserveCommand(cmd string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(cmd).Inc()
}

// Serve starts an HTTP server exposing /metrics on addr, stopping when ctx
// is canceled. Intended to run in its own goroutine.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Close()
	}
}
