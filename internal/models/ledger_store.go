package models

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ledgerRecord serializes writers of one user's ledger. ledger stays nil
// until the first successful Apply, so a failed first credit leaves no trace.
// A committed ledger is never modified again, readers load it without locking.
type ledgerRecord struct {
	mu     sync.Mutex
	ledger atomic.Pointer[UserLedger]
}

// CommitHook sees every committed ledger plus the pending one before the
// pending ledger becomes visible. An error aborts the commit. The hook must
// not modify the ledgers.
type CommitHook func(ledgers map[string]*UserLedger) error

// LedgerStore is the in-memory ledger repository backing the file driver.
// Credits for different users only contend on the map lock during insertion,
// and on commitMu while a commit hook is installed.
type LedgerStore struct {
	mu         sync.RWMutex
	records    map[string]*ledgerRecord
	maxLedgers int

	commitMu sync.Mutex
	hook     atomic.Pointer[CommitHook]
}

func NewLedgerStore(maxLedgers int) *LedgerStore {
	return &LedgerStore{
		records:    make(map[string]*ledgerRecord),
		maxLedgers: maxLedgers,
	}
}

// Apply runs mutate on a copy of the user's ledger (created lazily) and commits
// the copy only if mutate succeeds. identity is merged first-write-wins before mutate runs.
func (s *LedgerStore) Apply(ctx context.Context, userID string, identity *TelegramIdentity, mutate func(l *UserLedger) error) (*UserLedger, error) {
	rec, err := s.record(userID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var working *UserLedger
	if current := rec.ledger.Load(); current == nil {
		working = NewUserLedger(userID, time.Now().UTC())
	} else {
		working = current.Clone()
	}
	working.SetIdentityIfUnset(identity)

	if err := mutate(working); err != nil {
		return nil, err
	}
	if err := s.commit(rec, working); err != nil {
		return nil, err
	}
	return working.Clone(), nil
}

// SetCommitHook installs hook for every following Apply. nil removes it.
func (s *LedgerStore) SetCommitHook(hook CommitHook) {
	if hook == nil {
		s.hook.Store(nil)
		return
	}
	s.hook.Store(&hook)
}

// commit must be called with rec.mu held.
func (s *LedgerStore) commit(rec *ledgerRecord, working *UserLedger) error {
	hook := s.hook.Load()
	if hook == nil {
		rec.ledger.Store(working)
		return nil
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	ledgers := s.committed()
	ledgers[working.UserID] = working
	if err := (*hook)(ledgers); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	rec.ledger.Store(working)
	return nil
}

func (s *LedgerStore) committed() map[string]*UserLedger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*UserLedger, len(s.records))
	for id, rec := range s.records {
		if l := rec.ledger.Load(); l != nil {
			out[id] = l
		}
	}
	return out
}

func (s *LedgerStore) record(userID string) (*ledgerRecord, error) {
	// Fast path: user already known (read lock only)
	s.mu.RLock()
	rec, ok := s.records[userID]
	s.mu.RUnlock()
	if ok {
		return rec, nil
	}

	// Slow path: write lock with double-check
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok = s.records[userID]; ok {
		return rec, nil
	}
	if s.maxLedgers > 0 && len(s.records) >= s.maxLedgers {
		return nil, fmt.Errorf("%w: ledger capacity of %d reached", ErrStorageFailure, s.maxLedgers)
	}
	rec = &ledgerRecord{}
	s.records[userID] = rec
	return rec, nil
}

func (s *LedgerStore) Get(_ context.Context, userID string) (*UserLedger, error) {
	s.mu.RLock()
	rec, ok := s.records[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	l := rec.ledger.Load()
	if l == nil {
		return nil, ErrNotFound
	}
	return l.Clone(), nil
}

func (s *LedgerStore) List(_ context.Context) ([]*UserLedger, error) {
	committed := s.committed()
	out := make([]*UserLedger, 0, len(committed))
	for _, l := range committed {
		out = append(out, l.Clone())
	}
	return out, nil
}

func (s *LedgerStore) Count(_ context.Context) (int, error) {
	return len(s.committed()), nil
}

// Snapshot returns deep copies of every materialized ledger keyed by user id.
func (s *LedgerStore) Snapshot() map[string]*UserLedger {
	ledgers, _ := s.List(context.Background())
	out := make(map[string]*UserLedger, len(ledgers))
	for _, l := range ledgers {
		out[l.UserID] = l
	}
	return out
}

// PutData replaces the store contents, used when restoring from disk.
func (s *LedgerStore) PutData(ledgers map[string]*UserLedger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*ledgerRecord, len(ledgers))
	for id, l := range ledgers {
		if l == nil || id == "" {
			continue
		}
		l.UserID = id
		if l.History == nil {
			l.History = make([]HistoryEntry, 0)
		}
		if l.SeedingHistory == nil {
			l.SeedingHistory = make([]SeedingSession, 0)
		}
		rec := &ledgerRecord{}
		rec.ledger.Store(l)
		s.records[id] = rec
	}
}
