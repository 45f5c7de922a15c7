package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	// each run gets its own registry, so two instances never collide
	a := New()
	b := New()
	assert.NotSame(t, a.Registry(), b.Registry())

	a.RecordRead("papers")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.RecordsRead.WithLabelValues("papers")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RecordsRead.WithLabelValues("papers")))
}

func TestRecordCounters(t *testing.T) {
	m := New()

	m.RecordRead("methods")
	m.RecordRead("methods")
	m.RecordRejected("methods", "missing_url")
	m.RecordDuplicate("methods")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsRead.WithLabelValues("methods")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsRejected.WithLabelValues("methods", "missing_url")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDuplicate.WithLabelValues("methods")))
}

func TestObserveBatch(t *testing.T) {
	m := New()

	m.ObserveBatch("papers", 100, 60, 20*time.Millisecond, false)
	m.ObserveBatch("papers", 50, 0, 5*time.Millisecond, true)

	assert.Equal(t, 100.0, testutil.ToFloat64(m.RowsWritten.WithLabelValues("papers")))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.RowsInserted.WithLabelValues("papers")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.RowsFailed.WithLabelValues("papers")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BatchDuration, "pwcdb_batch_duration_seconds"))
}

func TestFinish(t *testing.T) {
	m := New()
	at := time.Unix(1700000000, 0)

	m.Finish(90*time.Second, false, at)
	assert.Equal(t, 90.0, testutil.ToFloat64(m.RunDuration))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastCompletion))

	m.Finish(30*time.Second, true, at)
	assert.Equal(t, 30.0, testutil.ToFloat64(m.RunDuration))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastCompletion))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RecordRead("papers")
	m.SetTableRows("papers", 42)

	path := filepath.Join(t.TempDir(), "pwcdb.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `pwcdb_records_read_total{source="papers"} 1`), text)
	assert.True(t, strings.Contains(text, `pwcdb_table_rows{table="papers"} 42`), text)

	err = m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.Error(t, err)
}
