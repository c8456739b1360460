package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"streamflix/internal/models"
	"streamflix/internal/structures"
	"streamflix/internal/testutil"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T, ttl time.Duration, clock clockwork.Clock) *HistoryArchive {
	dir := filepath.Join(t.TempDir(), "archive")
	return NewHistoryArchive(dir, 4, ttl, &testutil.MockCompressor{}, &testutil.MockLogger{}, clock)
}

func entries(ts time.Time, amounts ...float64) []models.HistoryEntry {
	out := make([]models.HistoryEntry, 0, len(amounts))
	for i, a := range amounts {
		out = append(out, models.HistoryEntry{
			ID:        fmt.Sprintf("h-%d-%v", i, a),
			Amount:    a,
			Reason:    models.ReasonSeeding,
			Timestamp: ts.Add(time.Duration(i) * time.Second),
		})
	}
	return out
}

func TestHistoryArchive_Has_Empty(t *testing.T) {
	ha := newTestArchive(t, 0, nil)
	assert.False(t, ha.Has("u1"))
	h, err := ha.Load("u1")
	assert.NoError(t, err)
	assert.Nil(t, h)
}

func TestHistoryArchive_Archive_NoIO(t *testing.T) {
	ha := newTestArchive(t, 0, nil)
	ha.Archive("u1", entries(time.Now(), 1, 2))

	assert.True(t, ha.Has("u1"))
	assert.Equal(t, 2, ha.PendingCount())

	// No file should exist until Flush
	_, err := os.Stat(ha.archiveFilePath(ha.bucketFor("u1")))
	assert.True(t, os.IsNotExist(err))
}

func TestHistoryArchive_ArchiveEmptyIgnored(t *testing.T) {
	ha := newTestArchive(t, 0, nil)
	ha.Archive("u1", nil)
	assert.False(t, ha.Has("u1"))
}

func TestHistoryArchive_LoadFromPending(t *testing.T) {
	ha := newTestArchive(t, 0, nil)
	now := time.Now()
	ha.Archive("u1", entries(now, 1))
	ha.Archive("u1", entries(now.Add(time.Minute), 2))

	h, err := ha.Load("u1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, 1.0, h[0].Amount)
	assert.Equal(t, 2.0, h[1].Amount)
}

func TestHistoryArchive_FlushRestoreRoundtrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	comp := &testutil.MockCompressor{}
	logger := &testutil.MockLogger{}
	now := time.Now()

	ha := NewHistoryArchive(dir, 4, 0, comp, logger, nil)
	ha.Archive("u1", entries(now, 1, 2))
	ha.Archive("u2", entries(now, 3))
	require.NoError(t, ha.Flush())
	assert.Equal(t, 0, ha.PendingCount())

	// Entries archived after a flush are appended behind the flushed ones.
	ha.Archive("u1", entries(now.Add(time.Hour), 4))
	require.NoError(t, ha.Flush())

	ha2 := NewHistoryArchive(dir, 4, 0, comp, logger, nil)
	require.NoError(t, ha2.RestoreIndex())
	assert.True(t, ha2.Has("u1"))
	assert.True(t, ha2.Has("u2"))
	assert.False(t, ha2.Has("u3"))

	h, err := ha2.Load("u1")
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, []float64{1, 2, 4}, []float64{h[0].Amount, h[1].Amount, h[2].Amount})
}

func TestHistoryArchive_LoadMergesDiskAndPending(t *testing.T) {
	ha := newTestArchive(t, 0, nil)
	now := time.Now()
	ha.Archive("u1", entries(now, 1))
	require.NoError(t, ha.Flush())
	ha.Archive("u1", entries(now.Add(time.Minute), 2))

	h, err := ha.Load("u1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, 1.0, h[0].Amount)
	assert.Equal(t, 2.0, h[1].Amount)
}

func TestHistoryArchive_SkipsRepeatedEntries(t *testing.T) {
	ha := newTestArchive(t, 0, nil)
	now := time.Now()
	ha.Archive("u1", entries(now, 1))
	ha.Archive("u1", entries(now, 1, 2))
	assert.Equal(t, 2, ha.PendingCount())

	require.NoError(t, ha.Flush())
	ha.Archive("u1", entries(now, 1))
	require.NoError(t, ha.Flush())

	h, err := ha.Load("u1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, []float64{1, 2}, []float64{h[0].Amount, h[1].Amount})
}

func TestHistoryArchive_TTLPrunesOldEntries(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	ha := newTestArchive(t, 24*time.Hour, clock)

	ha.Archive("old", entries(clock.Now().Add(-48*time.Hour), 1))
	ha.Archive("mixed", append(entries(clock.Now().Add(-48*time.Hour), 2), entries(clock.Now().Add(-time.Hour), 3)...))
	require.NoError(t, ha.Flush())

	assert.False(t, ha.Has("old"))
	h, err := ha.Load("mixed")
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, 3.0, h[0].Amount)
}

func TestHistoryArchive_EmptyBucketRemovesFile(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	ha := newTestArchive(t, time.Hour, clock)

	ha.Archive("u1", entries(clock.Now(), 1))
	require.NoError(t, ha.Flush())
	path := ha.archiveFilePath(ha.bucketFor("u1"))
	_, err := os.Stat(path)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	ha.Archive("u1", entries(clock.Now().Add(-3*time.Hour), 2))
	require.NoError(t, ha.Flush())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, ha.Has("u1"))
}

func TestHistoryArchive_FlushKeepsPendingOnWriteError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	comp := &testutil.MockCompressor{
		CompressFn: func(b []byte) ([]byte, error) { return nil, fmt.Errorf("disk full") },
	}
	ha := NewHistoryArchive(dir, 4, 0, comp, &testutil.MockLogger{}, nil)
	ha.Archive("u1", entries(time.Now(), 1))

	assert.Error(t, ha.Flush())
	assert.Equal(t, 1, ha.PendingCount())
	h, err := ha.Load("u1")
	require.NoError(t, err)
	assert.Len(t, h, 1)
}

func TestHistoryArchive_CorruptFileOnLoad(t *testing.T) {
	ha := newTestArchive(t, 0, nil)
	ha.Archive("u1", entries(time.Now(), 1))
	require.NoError(t, ha.Flush())

	require.NoError(t, os.WriteFile(ha.archiveFilePath(ha.bucketFor("u1")), []byte("garbage"), 0644))
	ha.mu.Lock()
	ha.loaded = make(map[int]*ArchiveFile)
	ha.mu.Unlock()

	_, err := ha.Load("u1")
	assert.Error(t, err)
}

func TestHistoryArchive_RestoreIndexSkipsForeignBuckets(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "history-099.cold.zst"), []byte(`{"entries":{"u9":{}}}`), 0644))

	logger := &testutil.MockLogger{}
	ha := NewHistoryArchive(dir, 4, 0, &testutil.MockCompressor{}, logger, nil)
	require.NoError(t, ha.RestoreIndex())
	assert.False(t, ha.Has("u9"))
	assert.Equal(t, 1, logger.Count("warn"))
}

func TestHistoryArchive_BucketFromPath(t *testing.T) {
	ha := newTestArchive(t, 0, nil)
	b, ok := ha.bucketFromPath("/x/history-003.cold.zst")
	assert.True(t, ok)
	assert.Equal(t, 3, b)

	_, ok = ha.bucketFromPath("/x/history-abc.cold.zst")
	assert.False(t, ok)
}

func TestHistoryArchive_ConcurrentArchive(t *testing.T) {
	ha := newTestArchive(t, 0, nil)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ha.Archive(fmt.Sprintf("u%d", i%5), entries(now, float64(i)))
			if i%10 == 0 {
				_ = ha.Flush()
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, ha.Flush())

	total := 0
	for u := 0; u < 5; u++ {
		h, err := ha.Load(fmt.Sprintf("u%d", u))
		require.NoError(t, err)
		total += len(h)
	}
	assert.Equal(t, 50, total)
	assert.Equal(t, 0, ha.PendingCount())
}

func TestNewHistoryArchiveFromConfig(t *testing.T) {
	svc := &testutil.MockLedgerService{}
	ha, err := NewHistoryArchiveFromConfig(&structures.Config{}, &testutil.MockCompressor{}, &testutil.MockLogger{}, svc)
	require.NoError(t, err)
	assert.Nil(t, ha)
	assert.Nil(t, svc.ArchiveHandle)

	dir := filepath.Join(t.TempDir(), "cold")
	conf := &structures.Config{Archive: structures.ArchiveConfig{Enabled: true, Dir: dir, Buckets: 2}}
	ha, err = NewHistoryArchiveFromConfig(conf, &testutil.MockCompressor{}, &testutil.MockLogger{}, svc)
	require.NoError(t, err)
	require.NotNil(t, ha)
	assert.Equal(t, 2, ha.buckets)
	assert.Same(t, ha, svc.ArchiveHandle)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
