package persistence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"streamflix/internal/models"
	"streamflix/internal/services"
	"streamflix/internal/structures"
	"streamflix/internal/testutil"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerService() services.LedgerServiceInterface {
	return services.NewLedgerService(&structures.Config{}, models.NewLedgerStore(0), nil, &testutil.MockLogger{})
}

func creditPeers(t *testing.T, svc services.LedgerServiceInterface, userID string, peers uint32) {
	t.Helper()
	_, err := svc.Credit(context.Background(), &models.CreditRequest{UserID: userID, ContentID: "movie-1", PeersConnected: peers})
	require.NoError(t, err)
}

func newTestFileManager(compressor *testutil.MockCompressor) (*FileManager, *testutil.MockLedgerService) {
	svc := &testutil.MockLedgerService{}
	logger := &testutil.MockLogger{}
	fm := NewFileManager(compressor, svc, logger)
	return fm, svc
}

func TestFileManager_SaveToFile_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledgers.dat")

	svc := newLedgerService()
	creditPeers(t, svc, "u1", 3)

	fm := NewFileManager(&testutil.MockCompressor{}, svc, &testutil.MockLogger{})
	require.NoError(t, fm.SaveToFile(path))

	_, err := os.Stat(path)
	assert.NoError(t, err)

	// Temp file should not exist
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var storage models.Storage
	require.NoError(t, json.Unmarshal(raw, &storage))
	assert.Equal(t, models.StorageVersion, storage.Version)
	assert.Equal(t, 3.0, storage.Ledgers["u1"].Tokens)
}

func TestFileManager_SaveToFile_SnapshotUnsupported(t *testing.T) {
	fm, svc := newTestFileManager(&testutil.MockCompressor{})
	svc.SnapshotErr = services.ErrSnapshotUnsupported

	err := fm.SaveToFile(filepath.Join(t.TempDir(), "x.dat"))
	assert.ErrorIs(t, err, services.ErrSnapshotUnsupported)
}

func TestFileManager_LoadFromFile_FileNotExist(t *testing.T) {
	fm, svc := newTestFileManager(&testutil.MockCompressor{})
	err := fm.LoadFromFile("/nonexistent/path/file.dat")
	assert.NoError(t, err) // not an error, just no data
	assert.Equal(t, 0, svc.PutCalls)
}

func TestFileManager_LoadFromFile_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.dat")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	fm, svc := newTestFileManager(&testutil.MockCompressor{})
	require.NoError(t, fm.LoadFromFile(path))
	assert.Equal(t, 0, svc.PutCalls)
}

func TestFileManager_LoadFromFile_SnapshotEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.dat")

	l := models.NewUserLedger("u1", time.Now().UTC())
	l.Tokens = 7
	storage := models.Storage{
		Version: models.StorageVersion,
		Ledgers: map[string]*models.UserLedger{"u1": l},
	}
	jsonData, _ := json.Marshal(storage)
	require.NoError(t, os.WriteFile(path, jsonData, 0644))

	fm, svc := newTestFileManager(&testutil.MockCompressor{})
	require.NoError(t, fm.LoadFromFile(path))

	assert.Equal(t, 1, svc.PutCalls)
	require.Contains(t, svc.Ledgers, "u1")
	assert.Equal(t, 7.0, svc.Ledgers["u1"].Tokens)
}

func TestFileManager_LoadFromFile_NewerVersionRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.dat")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"ledgers":{}}`), 0644))

	fm, svc := newTestFileManager(&testutil.MockCompressor{})
	assert.Error(t, fm.LoadFromFile(path))
	assert.Equal(t, 0, svc.PutCalls)
}

func TestFileManager_LoadFromFile_PointsLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.json")
	body := `{
		"111": {"points": 25.5, "history": [{"id":"a","amount":5.5,"reason":"seeding","timestamp":"2024-01-01T00:00:00Z"}]},
		"222": {"points": 3, "history": []}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	fm, svc := newTestFileManager(&testutil.MockCompressor{})
	require.NoError(t, fm.LoadFromFile(path))

	require.Len(t, svc.Ledgers, 2)
	l := svc.Ledgers["111"]
	assert.Equal(t, 25.5, l.Tokens)
	assert.Equal(t, 20.0, l.ArchivedTokens)
	assert.Len(t, l.History, 1)
	assert.Equal(t, 3.0, svc.Ledgers["222"].Tokens)
}

func TestFileManager_LoadFromFile_PlainPointsWithZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"u1":{"points":4,"history":[]}}`), 0644))

	comp := newTestCompressor(t, "")

	svc := newLedgerService()
	fm := NewFileManager(comp, svc, &testutil.MockLogger{})
	require.NoError(t, fm.LoadFromFile(path))

	m, err := svc.GetUserMetrics(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, m.Tokens)
}

func TestFileManager_LoadFromFile_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invalid.dat")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0644))

	fm, _ := newTestFileManager(&testutil.MockCompressor{})
	err := fm.LoadFromFile(path)
	assert.Error(t, err)
}

func TestFileManager_CompressError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "err.dat")

	comp := &testutil.MockCompressor{
		CompressFn: func(b []byte) ([]byte, error) {
			return nil, errors.New("compress failed")
		},
	}

	fm := NewFileManager(comp, newLedgerService(), &testutil.MockLogger{})

	err := fm.SaveToFile(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "compress failed")
}

func TestFileManager_DecompressError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dec.dat")
	require.NoError(t, os.WriteFile(path, []byte("some data"), 0644))

	comp := &testutil.MockCompressor{
		DecompressFn: func(b []byte) ([]byte, error) {
			return nil, errors.New("decompress failed")
		},
	}
	fm, _ := newTestFileManager(comp)

	err := fm.LoadFromFile(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decompress failed")
}

func TestFileManager_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roundtrip.dat")

	comp := newTestCompressor(t, "")

	svc := newLedgerService()
	creditPeers(t, svc, "u1", 2)
	creditPeers(t, svc, "u1", 3)
	creditPeers(t, svc, "u2", 9)

	logger := &testutil.MockLogger{}
	require.NoError(t, NewFileManager(comp, svc, logger).SaveToFile(path))

	svc2 := newLedgerService()
	require.NoError(t, NewFileManager(comp, svc2, logger).LoadFromFile(path))

	m, err := svc2.GetUserMetrics(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, m.Tokens)
	assert.Len(t, m.History, 2)
	assert.Equal(t, uint64(5), m.SeedingStats.TotalPeersServed)

	board, err := svc2.Leaderboard(context.Background())
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "u2", board[0].UserID)
}
