// Package metrics exposes the state of the chain and its pools as
// prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/prometheus/client_golang/prometheus"
)

// StatusFunc returns a summary of the node, state.State.QueryStatus
// satisfies it.
type StatusFunc func() (state.Status, error)

// Collector is a prometheus collector that reads the status of the node
// every time the metrics are scraped.
type Collector struct {
	status StatusFunc

	height       *prometheus.Desc
	work         *prometheus.Desc
	forks        *prometheus.Desc
	orphans      *prometheus.Desc
	mempool      *prometheus.Desc
	storedBlocks *prometheus.Desc
}

// NewCollector constructs a collector over the specified status function.
func NewCollector(status StatusFunc) *Collector {
	desc := func(name string, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("powchain", "chain", name), help, nil, nil)
	}

	return &Collector{
		status:       status,
		height:       desc("height", "Number of the tip block."),
		work:         desc("cumulative_work", "Total work of the chain, saturates for very large values."),
		forks:        desc("forks", "Number of forks being tracked."),
		orphans:      desc("orphans", "Number of blocks waiting for their parent."),
		mempool:      desc("mempool", "Number of pending transactions."),
		storedBlocks: desc("stored_blocks", "Number of blocks held in memory by the chain and the forks."),
	}
}

// Describe implements the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.height
	ch <- c.work
	ch <- c.forks
	ch <- c.orphans
	ch <- c.mempool
	ch <- c.storedBlocks
}

// Collect implements the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	status, err := c.status()
	if err != nil {
		for _, desc := range []*prometheus.Desc{c.height, c.work, c.forks, c.orphans, c.mempool, c.storedBlocks} {
			ch <- prometheus.NewInvalidMetric(desc, err)
		}
		return
	}

	ch <- prometheus.MustNewConstMetric(c.height, prometheus.GaugeValue, float64(status.Height))
	ch <- prometheus.MustNewConstMetric(c.forks, prometheus.GaugeValue, float64(status.Forks))
	ch <- prometheus.MustNewConstMetric(c.orphans, prometheus.GaugeValue, float64(status.Orphans))
	ch <- prometheus.MustNewConstMetric(c.mempool, prometheus.GaugeValue, float64(status.Mempool))
	ch <- prometheus.MustNewConstMetric(c.storedBlocks, prometheus.GaugeValue, float64(status.StoredBlocks))

	work, err := strconv.ParseFloat(status.CumulativeWork, 64)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.work, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.work, prometheus.GaugeValue, work)
}
