package services

import (
	"context"
	"github.com/jonboulle/clockwork"
	"sync"
	"time"
)

const DefaultReportIDTTL = 10 * time.Minute

// MemoryReportGuard is the single-process ReportGuard. Expired ids are swept
// at most once per ttl, on the claim path.
type MemoryReportGuard struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	ttl       time.Duration
	clock     clockwork.Clock
	lastSweep time.Time
}

func NewMemoryReportGuard(ttl time.Duration, clock clockwork.Clock) *MemoryReportGuard {
	if ttl <= 0 {
		ttl = DefaultReportIDTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryReportGuard{
		seen:      make(map[string]time.Time),
		ttl:       ttl,
		clock:     clock,
		lastSweep: clock.Now(),
	}
}

func guardKey(userID, reportID string) string {
	return userID + "\x00" + reportID
}

func (g *MemoryReportGuard) Claim(_ context.Context, userID, reportID string) (bool, error) {
	now := g.clock.Now()
	key := guardKey(userID, reportID)

	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Sub(g.lastSweep) >= g.ttl {
		for k, exp := range g.seen {
			if !now.Before(exp) {
				delete(g.seen, k)
			}
		}
		g.lastSweep = now
	}

	if exp, ok := g.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.seen[key] = now.Add(g.ttl)
	return true, nil
}

func (g *MemoryReportGuard) Release(_ context.Context, userID, reportID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, guardKey(userID, reportID))
}

func (g *MemoryReportGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
