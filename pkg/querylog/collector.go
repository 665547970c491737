// Package querylog collects per-query timings for a single run and writes
// them out on request.
package querylog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives one timing per executed query
type Recorder interface {
	Record(function, query string, took time.Duration, err error)
}

// Entry is one recorded query
type Entry struct {
	Function string
	Query    string
	Took     time.Duration
	Failed   bool
}

// Collector is a mutex-guarded, per-run query log.
// Nothing is written until Flush or FlushFile is called.
type Collector struct {
	mu      sync.Mutex
	runID   string
	entries []Entry

	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewCollector creates an empty collector with its own metrics registry
func NewCollector(runID string) *Collector {
	labels := prometheus.Labels{"run_id": runID}

	c := &Collector{
		runID:    runID,
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "vaccdash_query_duration_seconds",
			Help:        "Duration of store queries in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"function"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "vaccdash_query_failures_total",
			Help:        "Total number of failed store queries",
			ConstLabels: labels,
		}, []string{"function"}),
	}
	c.registry.MustRegister(c.duration, c.failures)
	return c
}

// RunID returns the run the collector belongs to
func (c *Collector) RunID() string {
	return c.runID
}

// Registry exposes the collector's metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Record appends a timing. Safe for concurrent use.
func (c *Collector) Record(function, query string, took time.Duration, err error) {
	c.mu.Lock()
	c.entries = append(c.entries, Entry{
		Function: function,
		Query:    query,
		Took:     took,
		Failed:   err != nil,
	})
	c.mu.Unlock()

	c.duration.WithLabelValues(function).Observe(took.Seconds())
	if err != nil {
		c.failures.WithLabelValues(function).Inc()
	}
}

// Entries returns a copy of the recorded entries in record order
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of recorded entries
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flush writes the log as CSV with header function,query,time_taken.
// time_taken is in seconds.
func (c *Collector) Flush(w io.Writer) error {
	entries := c.Entries()

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"function", "query", "time_taken"}); err != nil {
		return fmt.Errorf("failed to write query log header: %w", err)
	}
	for _, e := range entries {
		record := []string{e.Function, e.Query, strconv.FormatFloat(e.Took.Seconds(), 'f', -1, 64)}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write query log entry: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// FlushFile writes the log to path, replacing any existing file
func (c *Collector) FlushFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create query log %s: %w", path, err)
	}

	if err := c.Flush(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Nop discards every record
type Nop struct{}

// Record does nothing
func (Nop) Record(string, string, time.Duration, error) {}
