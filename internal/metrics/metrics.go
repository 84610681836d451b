// Package metrics collects named numeric, timing and distribution samples
// written by the engine. The engine only writes; readers are snapshots and
// sinks.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

type Kind int

const (
	KindValue Kind = iota
	KindTime
	KindDistribution
)

func (k Kind) String() string {
	switch k {
	case KindTime:
		return "time"
	case KindDistribution:
		return "distribution"
	default:
		return "value"
	}
}

// Metric aggregates every update written under one name. Values and times
// accumulate across updates; a distribution keeps its latest sample set.
type Metric struct {
	Name    string
	Kind    Kind
	Count   int
	Sum     float64
	Min     float64
	Max     float64
	Last    float64
	Samples []float64
}

func newMetric(name string, kind Kind) *Metric {
	return &Metric{Name: name, Kind: kind, Min: math.Inf(1), Max: math.Inf(-1)}
}

func (m *Metric) observe(v float64) {
	m.Count++
	m.Sum += v
	m.Last = v
	m.Min = math.Min(m.Min, v)
	m.Max = math.Max(m.Max, v)
}

// Mean is the mean of the latest sample for distributions and of all
// updates otherwise.
func (m Metric) Mean() float64 {
	if m.Kind == KindDistribution {
		if len(m.Samples) == 0 {
			return 0
		}
		return stat.Mean(m.Samples, nil)
	}
	if m.Count == 0 {
		return 0
	}
	return m.Sum / float64(m.Count)
}

func (m Metric) StdDev() float64 {
	if m.Kind != KindDistribution || len(m.Samples) < 2 {
		return 0
	}
	return stat.StdDev(m.Samples, nil)
}

// Quantile returns the empirical p-quantile of the latest distribution
// sample.
func (m Metric) Quantile(p float64) float64 {
	if len(m.Samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), m.Samples...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Duration interprets Last as seconds; meaningful for KindTime.
func (m Metric) Duration() time.Duration {
	return time.Duration(m.Last * float64(time.Second))
}

// TotalDuration interprets Sum as seconds.
func (m Metric) TotalDuration() time.Duration {
	return time.Duration(m.Sum * float64(time.Second))
}

func (m Metric) clone() Metric {
	m.Samples = append([]float64(nil), m.Samples...)
	return m
}

// MetricSet is safe for concurrent writers.
type MetricSet struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
}

func NewMetricSet() *MetricSet {
	return &MetricSet{metrics: make(map[string]*Metric)}
}

func (s *MetricSet) upsert(name string, kind Kind) *Metric {
	m, ok := s.metrics[name]
	if !ok {
		m = newMetric(name, kind)
		s.metrics[name] = m
	}
	return m
}

func (s *MetricSet) AddValue(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(name, KindValue).observe(v)
}

func (s *MetricSet) AddCount(name string, n int) {
	s.AddValue(name, float64(n))
}

func (s *MetricSet) AddTime(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(name, KindTime).observe(d.Seconds())
}

// AddDistribution replaces the sample set of name and folds its mean into the
// running aggregates.
func (s *MetricSet) AddDistribution(name string, samples []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.upsert(name, KindDistribution)
	m.Samples = append(m.Samples[:0], samples...)
	if len(samples) > 0 {
		m.observe(stat.Mean(samples, nil))
	}
}

func (s *MetricSet) Get(name string) (Metric, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[name]
	if !ok {
		return Metric{}, false
	}
	return m.clone(), true
}

func (s *MetricSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.metrics))
	for name := range s.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *MetricSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics)
}

func (s *MetricSet) Clone() *MetricSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := NewMetricSet()
	for name, m := range s.metrics {
		c := m.clone()
		out.metrics[name] = &c
	}
	return out
}

// Sink receives a snapshot of the accumulated metrics after every epoch.
type Sink interface {
	Observe(epoch int, metrics *MetricSet)
}
