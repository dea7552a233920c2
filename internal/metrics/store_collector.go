package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"postflow/internal/queue"
)

const scrapeTimeout = 5 * time.Second

// storeCollector reads item and job counts from the store on every scrape.
type storeCollector struct {
	store  *queue.Store
	items  *prometheus.Desc
	jobs   *prometheus.Desc
	errors *prometheus.Desc
}

func newStoreCollector(store *queue.Store) *storeCollector {
	return &storeCollector{
		store: store,
		items: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "content", "items"),
			"Content items by state", []string{"state"}, nil),
		jobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "jobs", "current"),
			"Stage jobs by stage and status", []string{"stage", "status"}, nil),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "scrape_errors"),
			"1 when the last scrape could not read the store", nil, nil),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.items
	ch <- c.jobs
	ch <- c.errors
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()
	stats, err := c.store.Stats(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.GaugeValue, 0)
	for state, count := range stats.States {
		ch <- prometheus.MustNewConstMetric(c.items, prometheus.GaugeValue, float64(count), string(state))
	}
	for stage, byStatus := range stats.Jobs {
		for status, count := range byStatus {
			ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(count), string(stage), string(status))
		}
	}
}
