package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BradenHooton/magiclink/internal/database"
)

// PoolStatsSource reports database pool occupancy. *database.DB satisfies it.
type PoolStatsSource interface {
	Stats() database.PoolStats
}

// poolCollector reads one snapshot per scrape so the gauges agree.
type poolCollector struct {
	source        PoolStatsSource
	acquired      *prometheus.Desc
	idle          *prometheus.Desc
	total         *prometheus.Desc
	max           *prometheus.Desc
	emptyAcquires *prometheus.Desc
}

// RegisterPool exports the database pool gauges on this registry.
func (m *Metrics) RegisterPool(source PoolStatsSource) error {
	name := func(n string) string { return prometheus.BuildFQName(m.namespace, "db_pool", n) }

	return m.registry.Register(&poolCollector{
		source:        source,
		acquired:      prometheus.NewDesc(name("acquired_conns"), "Connections currently checked out of the pool", nil, nil),
		idle:          prometheus.NewDesc(name("idle_conns"), "Idle connections held by the pool", nil, nil),
		total:         prometheus.NewDesc(name("total_conns"), "Connections open in the pool", nil, nil),
		max:           prometheus.NewDesc(name("max_conns"), "Configured pool size", nil, nil),
		emptyAcquires: prometheus.NewDesc(name("empty_acquires_total"), "Acquires that waited for a free connection", nil, nil),
	})
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.max
	ch <- c.emptyAcquires
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.Acquired))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquires, prometheus.CounterValue, float64(s.EmptyAcquires))
}
