// Package metrics exposes Prometheus metrics for the live preview server.
package metrics

import (
	"net/http"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the registry and the preview server's instruments.
type Collector struct {
	registry *prom.Registry

	RebuildsTotal       prom.Counter
	RebuildsFailedTotal prom.Counter
	RebuildDuration     prom.Histogram
	BroadcastsTotal     prom.Counter
	LiveReloadClients   prom.Gauge
}

var (
	defaultCollector *Collector
	collectorOnce    sync.Once
)

// NewCollector creates a collector with registered instruments.
func NewCollector() *Collector {
	c := &Collector{registry: prom.NewRegistry()}

	c.RebuildsTotal = prom.NewCounter(prom.CounterOpts{
		Namespace: "docmake", Name: "rebuilds_total", Help: "Total preview rebuilds triggered"})
	c.RebuildsFailedTotal = prom.NewCounter(prom.CounterOpts{
		Namespace: "docmake", Name: "rebuilds_failed_total", Help: "Preview rebuilds that failed"})
	c.RebuildDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "docmake", Name: "rebuild_duration_seconds", Help: "Duration of preview rebuilds",
		Buckets: prom.DefBuckets})
	c.BroadcastsTotal = prom.NewCounter(prom.CounterOpts{
		Namespace: "docmake", Name: "livereload_broadcasts_total", Help: "Live reload broadcasts sent"})
	c.LiveReloadClients = prom.NewGauge(prom.GaugeOpts{
		Namespace: "docmake", Name: "livereload_clients", Help: "Connected live reload clients"})

	c.registry.MustRegister(c.RebuildsTotal, c.RebuildsFailedTotal, c.RebuildDuration,
		c.BroadcastsTotal, c.LiveReloadClients)
	c.registry.MustRegister(promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return c
}

// Default returns the process-wide collector, creating it on first use.
func Default() *Collector {
	collectorOnce.Do(func() { defaultCollector = NewCollector() })
	return defaultCollector
}

// HTTPHandler returns an http.Handler that serves the collector's registry.
func (c *Collector) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
