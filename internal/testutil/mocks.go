package testutil

import (
	"context"
	"streamflix/internal/models"
	"streamflix/internal/providers"
	"sync"
	"time"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// Count returns how many entries were logged at level.
func (m *MockLogger) Count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.Logs {
		if l.Level == level {
			n++
		}
	}
	return n
}

// MockLedgerService implements services.LedgerServiceInterface.
type MockLedgerService struct {
	mu             sync.Mutex
	CreditCalls    []*models.CreditRequest
	CreditResult   *models.CreditResult
	CreditErr      error
	Metrics        map[string]*models.UserMetrics
	History        map[string][]models.HistoryEntry
	Board          []models.LeaderboardEntry
	BoardErr       error
	BoardCalls     int
	Ledgers        map[string]*models.UserLedger
	PutCalls       int
	SnapshotErr    error
	CommitHook     func(*models.Storage) error
	ArchiveHandle  models.HistoryArchiveInterface
	MetricsHandle  providers.MetricsProviderInterface
	LedgerCountVal int
}

func (m *MockLedgerService) Credit(_ context.Context, req *models.CreditRequest) (*models.CreditResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreditCalls = append(m.CreditCalls, req)
	if m.CreditErr != nil {
		return nil, m.CreditErr
	}
	if m.CreditResult != nil {
		return m.CreditResult, nil
	}
	return &models.CreditResult{Success: true, SeedingRank: models.RankStarter}, nil
}

func (m *MockLedgerService) GetUserMetrics(_ context.Context, userID string) (*models.UserMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if um, ok := m.Metrics[userID]; ok {
		return um, nil
	}
	return nil, models.ErrNotFound
}

func (m *MockLedgerService) GetHistory(_ context.Context, userID string) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.History[userID]; ok {
		return h, nil
	}
	return nil, models.ErrNotFound
}

func (m *MockLedgerService) Leaderboard(_ context.Context) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BoardCalls++
	return m.Board, m.BoardErr
}

func (m *MockLedgerService) LedgerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LedgerCountVal
}

func (m *MockLedgerService) GetSnapshot() (*models.Storage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SnapshotErr != nil {
		return nil, m.SnapshotErr
	}
	ledgers := make(map[string]*models.UserLedger, len(m.Ledgers))
	for id, l := range m.Ledgers {
		ledgers[id] = l.Clone()
	}
	return &models.Storage{Version: models.StorageVersion, Ledgers: ledgers}, nil
}

func (m *MockLedgerService) PutLedgers(ledgers map[string]*models.UserLedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SnapshotErr != nil {
		return m.SnapshotErr
	}
	m.PutCalls++
	m.Ledgers = ledgers
	return nil
}

func (m *MockLedgerService) SetHistoryArchive(archive models.HistoryArchiveInterface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArchiveHandle = archive
}

func (m *MockLedgerService) SetMetrics(metrics providers.MetricsProviderInterface) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MetricsHandle = metrics
}

func (m *MockLedgerService) SetCommitHook(fn func(*models.Storage) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitHook = fn
	return nil
}

// MockCache implements providers.CacheProviderInterface.
type MockCache struct {
	mu   sync.Mutex
	Data map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{Data: make(map[string][]byte)}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.Data[key]
	return val, ok
}

func (m *MockCache) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
}

// MockCompressor implements interfaces.CompressorInterface with injectable behavior.
type MockCompressor struct {
	CompressFn   func([]byte) ([]byte, error)
	DecompressFn func([]byte) ([]byte, error)
}

func (m *MockCompressor) Compress(val []byte) ([]byte, error) {
	if m.CompressFn != nil {
		return m.CompressFn(val)
	}
	// Default: return as-is (identity)
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Decompress(val []byte) ([]byte, error) {
	if m.DecompressFn != nil {
		return m.DecompressFn(val)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Close() {}

// MockMetrics implements providers.MetricsProviderInterface and records credit outcomes.
type MockMetrics struct {
	mu                  sync.Mutex
	Credits             map[string]int
	TokensAwarded       float64
	ArchivePending      int
	PersistenceObserved int
	Requests            int
}

func (m *MockMetrics) IncRequestsTotal(_ string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests++
}

func (m *MockMetrics) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Requests
}

func (m *MockMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (m *MockMetrics) IncCacheHits()                                    {}
func (m *MockMetrics) IncCacheMisses()                                  {}

func (m *MockMetrics) ObservePersistenceDuration(_ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PersistenceObserved++
}

func (m *MockMetrics) IncCredits(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Credits == nil {
		m.Credits = make(map[string]int)
	}
	m.Credits[outcome]++
}

func (m *MockMetrics) AddTokensAwarded(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensAwarded += amount
}

func (m *MockMetrics) SetArchivePending(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArchivePending = count
}

func (m *MockMetrics) CreditCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Credits[outcome]
}

// MockArchive implements models.HistoryArchiveInterface in memory.
type MockArchive struct {
	mu      sync.Mutex
	Entries map[string][]models.HistoryEntry
	LoadErr error
}

func NewMockArchive() *MockArchive {
	return &MockArchive{Entries: make(map[string][]models.HistoryEntry)}
}

func (m *MockArchive) Archive(userID string, entries []models.HistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries[userID] = append(m.Entries[userID], entries...)
}

func (m *MockArchive) Load(userID string) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return append([]models.HistoryEntry(nil), m.Entries[userID]...), nil
}

func (m *MockArchive) Has(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries[userID]) > 0
}

func (m *MockArchive) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Entries {
		n += len(e)
	}
	return n
}
