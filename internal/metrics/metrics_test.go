package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsLabels(t *testing.T) {
	m := New("test", prometheus.NewRegistry())
	l := Labels{Network: "testnet", Format: "record", Check: "hash_chain"}

	m.IncFilesProcessed(l)
	m.IncFilesProcessed(l)
	m.IncFilesFailed(l)
	m.AddItemsProcessed(l, 7)
	m.AddGasUsed(l, 21_000)
	m.SetLastFile(l, 42, 1_700_000_000_500_000_000)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesProcessed.WithLabelValues("testnet", "record")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesFailed.WithLabelValues("testnet", "record", "hash_chain")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ItemsProcessed.WithLabelValues("testnet", "record")))
	assert.Equal(t, 21_000.0, testutil.ToFloat64(m.GasUsed.WithLabelValues("testnet")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.LastFileIndex.WithLabelValues("testnet", "record")))
	assert.InDelta(t, 1_700_000_000.5, testutil.ToFloat64(m.LastConsensus.WithLabelValues("testnet", "record")), 1e-3)
}

func TestNewRegistersIndependently(t *testing.T) {
	// Separate registries must not collide on metric names.
	assert.NotPanics(t, func() {
		New("", prometheus.NewRegistry())
		New("", prometheus.NewRegistry())
	})
}
