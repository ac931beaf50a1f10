package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "etherhive"

var _ prometheus.Collector = (*Collector)(nil)

// Collector exports a Registry to Prometheus.
type Collector struct {
	registry *Registry
	frames   *prometheus.Desc
	errors   *prometheus.Desc
	state    *prometheus.Desc
}

func NewCollector(r *Registry) *Collector {
	return &Collector{
		registry: r,
		frames: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "link", "frames_total"),
			"Frames handled by the link layer, by direction.",
			[]string{"interface", "direction"},
			nil,
		),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "link", "errors_total"),
			"Link layer frame errors, by kind.",
			[]string{"interface", "kind"},
			nil,
		),
		state: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "interface", "state"),
			"Addressing state of an interface; the active state has value 1.",
			[]string{"interface", "state"},
			nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.frames
	ch <- c.errors
	ch <- c.state
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.registry.Names() {
		s := c.registry.Link(name).Snapshot()
		ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(s.Xmit), name, "xmit")
		ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(s.Recv), name, "recv")
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.Drop), name, "drop")
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.MemErr), name, "memerr")
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.LenErr), name, "lenerr")

		if state := c.registry.State(name); state != "" {
			ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, 1, name, state)
		}
	}
}
