package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/viktsys/twmarket/models"
)

// TableReporter is the part of the store the table collector reads.
type TableReporter interface {
	Info(ctx context.Context) ([]models.TableInfo, error)
}

// TableCollector exports the row count of every table at scrape time.
type TableCollector struct {
	store TableReporter
	log   *logrus.Entry

	rows     *prometheus.Desc
	distinct *prometheus.Desc
}

func NewTableCollector(store TableReporter, log *logrus.Logger) *TableCollector {
	return &TableCollector{
		store: store,
		log:   log.WithField("component", "metrics"),
		rows: prometheus.NewDesc(
			"twmarket_table_rows",
			"Rows stored per table",
			[]string{"table"}, nil,
		),
		distinct: prometheus.NewDesc(
			"twmarket_table_distinct_keys",
			"Distinct instrument keys per table",
			[]string{"table"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *TableCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rows
	ch <- c.distinct
}

// Collect implements prometheus.Collector
func (c *TableCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := c.store.Info(ctx)
	if err != nil {
		c.log.WithError(err).Warn("failed to collect table stats")
		return
	}
	for _, info := range infos {
		ch <- prometheus.MustNewConstMetric(c.rows, prometheus.GaugeValue, float64(info.Rows), info.Table)
		ch <- prometheus.MustNewConstMetric(c.distinct, prometheus.GaugeValue, float64(info.Distinct), info.Table)
	}
}
