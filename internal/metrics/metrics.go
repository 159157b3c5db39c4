package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter MetricType = "counter"
	Timer   MetricType = "timer"
	Gauge   MetricType = "gauge"
)

const maxTimerSamples = 1000

// Metric is a counter or gauge value.
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Value       float64           `json:"value"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	LastUpdate  time.Time         `json:"last_update"`
}

// TimerMetric summarizes observed durations in milliseconds.
type TimerMetric struct {
	Name        string            `json:"name"`
	Labels      map[string]string `json:"labels,omitempty"`
	Description string            `json:"description,omitempty"`
	Count       int64             `json:"count"`
	Sum         float64           `json:"sum_ms"`
	Min         float64           `json:"min_ms"`
	Max         float64           `json:"max_ms"`
	Average     float64           `json:"avg_ms"`
	P95         float64           `json:"p95_ms,omitempty"`
	P99         float64           `json:"p99_ms,omitempty"`
	samples     []float64
}

// Snapshot is a point-in-time copy of a registry.
type Snapshot struct {
	Counters  map[string]Metric      `json:"counters"`
	Timers    map[string]TimerMetric `json:"timers"`
	Gauges    map[string]Metric      `json:"gauges"`
	UptimeMs  int64                  `json:"uptime_ms"`
	Timestamp int64                  `json:"timestamp"`
}

// Registry keeps metrics in memory.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	timers    map[string]*TimerMetric
	gauges    map[string]*Metric
	startTime time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		timers:    make(map[string]*TimerMetric),
		gauges:    make(map[string]*Metric),
		startTime: time.Now(),
	}
}

var globalRegistry = NewRegistry()

// GetRegistry returns the process-wide registry.
func GetRegistry() *Registry {
	return globalRegistry
}

func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

func (r *Registry) AddToCounter(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	counter, ok := r.counters[key]
	if !ok {
		counter = &Metric{Name: name, Type: Counter, Labels: copyLabels(labels), Description: description}
		r.counters[key] = counter
	}
	counter.Value += value
	counter.LastUpdate = time.Now()
}

func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := metricKey(name, labels)
	ms := float64(duration.Nanoseconds()) / 1e6

	timer, ok := r.timers[key]
	if !ok {
		timer = &TimerMetric{Name: name, Labels: copyLabels(labels), Description: description, Min: ms, Max: ms}
		r.timers[key] = timer
	}
	timer.Count++
	timer.Sum += ms
	timer.Min = min(timer.Min, ms)
	timer.Max = max(timer.Max, ms)
	timer.Average = timer.Sum / float64(timer.Count)

	timer.samples = append(timer.samples, ms)
	if len(timer.samples) > maxTimerSamples {
		timer.samples = timer.samples[len(timer.samples)-maxTimerSamples:]
	}
	if len(timer.samples) >= 10 {
		timer.P95, timer.P99 = percentiles(timer.samples)
	}
}

func (r *Registry) SetGauge(name string, value float64, labels map[string]string, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gauges[metricKey(name, labels)] = &Metric{
		Name:        name,
		Type:        Gauge,
		Value:       value,
		Labels:      copyLabels(labels),
		Description: description,
		LastUpdate:  time.Now(),
	}
}

// GetAllMetrics copies the registry so callers can encode it without holding
// the lock.
func (r *Registry) GetAllMetrics() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Counters:  make(map[string]Metric, len(r.counters)),
		Timers:    make(map[string]TimerMetric, len(r.timers)),
		Gauges:    make(map[string]Metric, len(r.gauges)),
		UptimeMs:  time.Since(r.startTime).Milliseconds(),
		Timestamp: time.Now().Unix(),
	}
	for key, c := range r.counters {
		snap.Counters[key] = *c
	}
	for key, t := range r.timers {
		cp := *t
		cp.samples = nil
		snap.Timers[key] = cp
	}
	for key, g := range r.gauges {
		snap.Gauges[key] = *g
	}
	return snap
}

// Reset drops every metric.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters = make(map[string]*Metric)
	r.timers = make(map[string]*TimerMetric)
	r.gauges = make(map[string]*Metric)
}

// metricKey renders name plus labels in sorted order, e.g. "sent_kind:group".
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("_")
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(labels[k])
	}
	return b.String()
}

func percentiles(samples []float64) (p95, p99 float64) {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	at := func(p float64) float64 {
		i := int(float64(len(sorted)) * p)
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return sorted[i]
	}
	return at(0.95), at(0.99)
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// Package-level helpers write to the global registry.

func IncrementCounter(name string, labels map[string]string, description string) {
	globalRegistry.IncrementCounter(name, labels, description)
}

func AddToCounter(name string, value float64, labels map[string]string, description string) {
	globalRegistry.AddToCounter(name, value, labels, description)
}

func RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	globalRegistry.RecordTimer(name, duration, labels, description)
}

func SetGauge(name string, value float64, labels map[string]string, description string) {
	globalRegistry.SetGauge(name, value, labels, description)
}

func GetAllMetrics() Snapshot {
	return globalRegistry.GetAllMetrics()
}
