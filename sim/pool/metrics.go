package pool

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/simopt/simopt/sim/optimize"
)

// PrometheusCollector exposes pool admission state. Values are read from
// Stats on every scrape and emitted as ConstMetrics:
//
//	<ns>_max_concurrent, <ns>_running, <ns>_queued            (gauges)
//	<ns>_submitted_total, <ns>_admitted_total, <ns>_cancelled_total
//	<ns>_completed_total{status="<status>"}                  (counters)
type PrometheusCollector struct {
	pool *Pool

	maxDesc       *prometheus.Desc
	runningDesc   *prometheus.Desc
	queuedDesc    *prometheus.Desc
	submittedDesc *prometheus.Desc
	admittedDesc  *prometheus.Desc
	cancelledDesc *prometheus.Desc
	completedDesc *prometheus.Desc
}

// NewPrometheusCollector creates a collector for p. namespace defaults to
// "simopt_solver_pool".
func NewPrometheusCollector(p *Pool, namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = "simopt_solver_pool"
	}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(fmt.Sprintf("%s_%s", namespace, name), help, labels, nil)
	}
	return &PrometheusCollector{
		pool:          p,
		maxDesc:       desc("max_concurrent", "Configured maximum of concurrent solves"),
		runningDesc:   desc("running", "Solves currently holding a slot"),
		queuedDesc:    desc("queued", "Solves waiting for a slot"),
		submittedDesc: desc("submitted_total", "Solve requests submitted"),
		admittedDesc:  desc("admitted_total", "Solve requests admitted to a slot"),
		cancelledDesc: desc("cancelled_total", "Solve requests cancelled before admission"),
		completedDesc: desc("completed_total", "Solves completed, by classified status", "status"),
	}
}

// Describe sends metric descriptors.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxDesc
	ch <- c.runningDesc
	ch <- c.queuedDesc
	ch <- c.submittedDesc
	ch <- c.admittedDesc
	ch <- c.cancelledDesc
	ch <- c.completedDesc
}

// Collect emits the current stats.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.maxDesc, prometheus.GaugeValue, float64(s.MaxConcurrent))
	ch <- prometheus.MustNewConstMetric(c.runningDesc, prometheus.GaugeValue, float64(s.Running))
	ch <- prometheus.MustNewConstMetric(c.queuedDesc, prometheus.GaugeValue, float64(s.Queued))
	ch <- prometheus.MustNewConstMetric(c.submittedDesc, prometheus.CounterValue, float64(s.Submitted))
	ch <- prometheus.MustNewConstMetric(c.admittedDesc, prometheus.CounterValue, float64(s.Admitted))
	ch <- prometheus.MustNewConstMetric(c.cancelledDesc, prometheus.CounterValue, float64(s.Cancelled))

	statuses := make([]string, 0, len(s.Outcomes))
	for st := range s.Outcomes {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		ch <- prometheus.MustNewConstMetric(c.completedDesc, prometheus.CounterValue, float64(s.Outcomes[optimize.Status(st)]), st)
	}
}
