// Package metrics counts mount, unmount and fstab outcomes in a private
// prometheus registry. netmount is a short-lived command, so instead of
// serving the registry it is written to a node_exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netmount"

// Collector implements mount.Observer
type Collector struct {
	registry *prometheus.Registry

	mountTotal       *prometheus.CounterVec
	mountDuration    *prometheus.HistogramVec
	unmountTotal     *prometheus.CounterVec
	unmountDuration  prometheus.Histogram
	fstabChanges     *prometheus.CounterVec
	credentialsPurge prometheus.Counter
	lastRun          prometheus.Gauge
}

// NewCollector creates a Collector with its own registry
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		mountTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mount_total",
			Help:      "Mount attempts by filesystem type and outcome.",
		}, []string{"type", "status"}),
		mountDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mount_duration_seconds",
			Help:      "Time spent in mount attempts.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"type"}),
		unmountTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmount_total",
			Help:      "Unmount attempts by outcome.",
		}, []string{"status"}),
		unmountDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unmount_duration_seconds",
			Help:      "Time spent in unmount attempts.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		fstabChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fstab_changes_total",
			Help:      "Static mount table edits by result.",
		}, []string{"result"}),
		credentialsPurge: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credentials_purged_total",
			Help:      "Unreferenced credentials files removed.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last netmount run that wrote metrics.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.mountTotal, c.mountDuration, c.unmountTotal, c.unmountDuration,
		c.fstabChanges, c.credentialsPurge, c.lastRun,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return c, nil
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveMount(fsType, status string, elapsed time.Duration) {
	c.mountTotal.WithLabelValues(fsType, status).Inc()
	c.mountDuration.WithLabelValues(fsType).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveUnmount(status string, elapsed time.Duration) {
	c.unmountTotal.WithLabelValues(status).Inc()
	c.unmountDuration.Observe(elapsed.Seconds())
}

// ObserveFstab counts one upsert or remove result
func (c *Collector) ObserveFstab(result string) {
	c.fstabChanges.WithLabelValues(result).Inc()
}

// ObservePurge counts removed credentials files
func (c *Collector) ObservePurge(n int) {
	c.credentialsPurge.Add(float64(n))
}

// WriteToTextfile stamps the run time and writes the registry to path
// atomically. An empty path is a no-op.
func (c *Collector) WriteToTextfile(path string) error {
	if path == "" {
		return nil
	}
	c.lastRun.SetToCurrentTime()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
