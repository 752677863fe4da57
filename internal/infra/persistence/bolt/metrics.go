package bolt

import (
	"github.com/prometheus/client_golang/prometheus"
	bbolt "go.etcd.io/bbolt"

	"heritagestore/pkg/domain"
)

var (
	recordsDesc = prometheus.NewDesc(
		"heritage_records_total",
		"Number of records stored per collection",
		[]string{"collection"}, nil)

	titlesDesc = prometheus.NewDesc(
		"heritage_title_index_entries",
		"Number of entries in the title index",
		nil, nil)

	boltWritesDesc = prometheus.NewDesc(
		"heritage_boltdb_writes_total",
		"Total number of boltdb writes",
		nil, nil)

	boltReadsDesc = prometheus.NewDesc(
		"heritage_boltdb_reads_total",
		"Total number of boltdb reads",
		nil, nil)
)

// Describe returns all descriptions of the collector.
func (s *Store) Describe(ch chan<- *prometheus.Desc) {
	ch <- recordsDesc
	ch <- titlesDesc
	ch <- boltWritesDesc
	ch <- boltReadsDesc
}

// Collect returns the current state of all metrics of the collector.
// A closed store reports nothing.
func (s *Store) Collect(ch chan<- prometheus.Metric) {
	if s.Closed() {
		return
	}
	stats := s.db.Stats()
	ch <- prometheus.MustNewConstMetric(boltReadsDesc, prometheus.CounterValue, float64(stats.TxN))
	ch <- prometheus.MustNewConstMetric(boltWritesDesc, prometheus.CounterValue, float64(stats.TxStats.Write))

	counts := make(map[domain.Collection]int)
	titles := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		for _, c := range domain.Collections() {
			if c == domain.CollectionIndexes {
				continue
			}
			counts[c] = tx.Bucket(bucketName(c)).Stats().KeyN
		}
		if idx, err := readTitles(tx); err == nil {
			titles = len(idx)
		}
		return nil
	})
	for c, n := range counts {
		ch <- prometheus.MustNewConstMetric(recordsDesc, prometheus.GaugeValue, float64(n), string(c))
	}
	ch <- prometheus.MustNewConstMetric(titlesDesc, prometheus.GaugeValue, float64(titles))
}
