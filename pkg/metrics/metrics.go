// Package metrics exposes Prometheus instrumentation for the object store
// and glob evaluator: how often the backing store is actually hit versus
// served from cache, and how long glob walks take.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls whether metrics are collected and where they are served.
type Config struct {
	Enabled   bool
	Port      int
	Path      string
	Namespace string
}

// Collector holds the Prometheus metrics this module records.
type Collector struct {
	config *Config

	registry *prometheus.Registry
	server   *http.Server

	backingStoreAccess *prometheus.CounterVec
	globWalkDuration   *prometheus.HistogramVec
	prefetchFailures   prometheus.Counter
}

// NewCollector builds a Collector and registers its metrics. A nil config
// enables collection on the default namespace/path/port.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{Enabled: true, Port: 9090, Path: "/metrics", Namespace: "vcsmount"}
	}
	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	registry := prometheus.NewRegistry()
	c := &Collector{config: config, registry: registry}

	c.backingStoreAccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Subsystem: "store",
		Name:      "access_total",
		Help:      "Backing-store accesses by object kind and origin.",
	}, []string{"kind", "origin"})

	c.globWalkDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Subsystem: "glob",
		Name:      "walk_duration_seconds",
		Help:      "Time to evaluate a compiled pattern against a directory tree.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"root"})

	c.prefetchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Subsystem: "store",
		Name:      "prefetch_failures_total",
		Help:      "Blob prefetches that failed to resolve against the backing store.",
	})

	for _, m := range []prometheus.Collector{c.backingStoreAccess, c.globWalkDuration, c.prefetchFailures} {
		if err := registry.Register(m); err != nil {
			return nil, fmt.Errorf("registering metric: %w", err)
		}
	}

	return c, nil
}

// RecordStoreAccess records one backing-store access for an object of the
// given kind ("tree" or "blob"), served from origin ("memory",
// "local-cache", or "remote-fetch").
func (c *Collector) RecordStoreAccess(kind, origin string) {
	if !c.config.Enabled {
		return
	}
	c.backingStoreAccess.WithLabelValues(kind, origin).Inc()
}

// RecordGlobWalk records how long a glob walk against root took.
func (c *Collector) RecordGlobWalk(root string, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.globWalkDuration.WithLabelValues(root).Observe(d.Seconds())
}

// RecordPrefetchFailure increments the prefetch-failure counter.
func (c *Collector) RecordPrefetchFailure() {
	if !c.config.Enabled {
		return
	}
	c.prefetchFailures.Inc()
}

// Start serves the registry at the configured Path until ctx is done or
// Stop is called.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = c.server.Shutdown(context.Background())
	}()

	if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Stop shuts the metrics server down, if it was started.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}
