package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter publishes epoch metrics as Prometheus gauges labelled by metric
// name and statistic.
type Exporter struct {
	values *prometheus.GaugeVec
	epoch  prometheus.Gauge
}

var _ Sink = (*Exporter)(nil)

func NewExporter(reg prometheus.Registerer, namespace string) (*Exporter, error) {
	e := &Exporter{
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_metric",
			Help:      "Latest engine metric statistics by metric name.",
		}, []string{"metric", "stat"}),
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_epoch",
			Help:      "Index of the most recently finalized epoch.",
		}),
	}
	if err := reg.Register(e.values); err != nil {
		return nil, fmt.Errorf("register metric gauges: %w", err)
	}
	if err := reg.Register(e.epoch); err != nil {
		return nil, fmt.Errorf("register epoch gauge: %w", err)
	}
	return e, nil
}

func (e *Exporter) Observe(epoch int, set *MetricSet) {
	e.epoch.Set(float64(epoch))
	for _, name := range set.Names() {
		m, _ := set.Get(name)
		e.values.WithLabelValues(name, "last").Set(m.Last)
		e.values.WithLabelValues(name, "mean").Set(m.Mean())
		e.values.WithLabelValues(name, "count").Set(float64(m.Count))
		if m.Count > 0 {
			e.values.WithLabelValues(name, "min").Set(m.Min)
			e.values.WithLabelValues(name, "max").Set(m.Max)
		}
		if m.Kind == KindDistribution {
			e.values.WithLabelValues(name, "stddev").Set(m.StdDev())
		}
	}
}
