package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	m := NewMetrics()

	m.RecordOperation("checkin", "success", 20*time.Millisecond)
	m.RecordOperation("checkin", "success", 30*time.Millisecond)
	m.RecordOperation("checkout", "error", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("checkin", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("checkout", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.OperationDuration))
}

func TestCountersAreIndependentPerInstance(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordLockConflict("checkout")
	a.VersionsPurgedTotal.Add(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.LockConflictsTotal.WithLabelValues("checkout")))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.VersionsPurgedTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.VersionsPurgedTotal))
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.RecordCopy("checkout", 2048)
	m.VersionsCreatedTotal.Inc()

	path := filepath.Join(t.TempDir(), "assetstore.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `assetstore_bytes_copied_total{direction="checkout"} 2048`)
	assert.Contains(t, string(data), "assetstore_versions_created_total 1")
}
