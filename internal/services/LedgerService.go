package services

import (
	"context"
	"errors"
	"fmt"
	"github.com/jonboulle/clockwork"
	"streamflix/internal/models"
	"streamflix/internal/providers"
	"streamflix/internal/structures"
	"sync"
	"time"
)

var ErrSnapshotUnsupported = errors.New("storage driver does not support snapshots")

// LedgerRepository persists user ledgers. Apply must serialize calls for the
// same user and leave the stored ledger untouched when mutate returns an error.
type LedgerRepository interface {
	Apply(ctx context.Context, userID string, identity *models.TelegramIdentity, mutate func(l *models.UserLedger) error) (*models.UserLedger, error)
	Get(ctx context.Context, userID string) (*models.UserLedger, error)
	List(ctx context.Context) ([]*models.UserLedger, error)
	Count(ctx context.Context) (int, error)
}

// TopLister is implemented by repositories that can rank ledgers themselves.
type TopLister interface {
	Top(ctx context.Context, n int) ([]*models.UserLedger, error)
}

// Snapshotter is implemented by in-memory repositories that are persisted to a file.
type Snapshotter interface {
	Snapshot() map[string]*models.UserLedger
	PutData(ledgers map[string]*models.UserLedger)
}

// CommitHooker is implemented by repositories that can run a hook inside each commit.
type CommitHooker interface {
	SetCommitHook(hook models.CommitHook)
}

// Pinger is implemented by backends that live outside the process.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReportGuard remembers report ids so a retried report is credited once.
type ReportGuard interface {
	// Claim returns false if reportID was already claimed for userID and has not expired.
	Claim(ctx context.Context, userID, reportID string) (bool, error)
	Release(ctx context.Context, userID, reportID string)
}

type LedgerServiceInterface interface {
	Credit(ctx context.Context, req *models.CreditRequest) (*models.CreditResult, error)
	GetUserMetrics(ctx context.Context, userID string) (*models.UserMetrics, error)
	GetHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error)
	Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
	LedgerCount() int
	GetSnapshot() (*models.Storage, error)
	PutLedgers(ledgers map[string]*models.UserLedger) error
	SetHistoryArchive(archive models.HistoryArchiveInterface)
	SetMetrics(metrics providers.MetricsProviderInterface)
	SetCommitHook(fn func(storage *models.Storage) error) error
}

type LedgerService struct {
	repo            LedgerRepository
	guard           ReportGuard
	logger          providers.Logger
	clock           clockwork.Clock
	historyLimit    int
	leaderboardSize int

	mu      sync.RWMutex
	archive models.HistoryArchiveInterface
	metrics providers.MetricsProviderInterface
}

func NewLedgerService(conf *structures.Config, repo LedgerRepository, guard ReportGuard, logger providers.Logger) LedgerServiceInterface {
	return newLedgerService(conf, repo, guard, logger, clockwork.NewRealClock())
}

func newLedgerService(conf *structures.Config, repo LedgerRepository, guard ReportGuard, logger providers.Logger, clock clockwork.Clock) *LedgerService {
	historyLimit := conf.Ledger.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = models.DefaultHistoryLimit
	}
	size := conf.Ledger.LeaderboardSize
	if size <= 0 {
		size = models.DefaultLeaderboardSize
	}
	return &LedgerService{
		repo:            repo,
		guard:           guard,
		logger:          logger,
		clock:           clock,
		historyLimit:    historyLimit,
		leaderboardSize: size,
		metrics:         providers.NewNoopMetrics(),
	}
}

func (ls *LedgerService) SetHistoryArchive(archive models.HistoryArchiveInterface) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.archive = archive
}

func (ls *LedgerService) SetMetrics(metrics providers.MetricsProviderInterface) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.metrics = metrics
}

// SetCommitHook makes fn part of every credit: a credit is acknowledged only
// after fn accepted the ledger set that includes it. nil removes the hook.
func (ls *LedgerService) SetCommitHook(fn func(storage *models.Storage) error) error {
	h, ok := ls.repo.(CommitHooker)
	if !ok {
		return ErrSnapshotUnsupported
	}
	if fn == nil {
		h.SetCommitHook(nil)
		return nil
	}
	h.SetCommitHook(func(ledgers map[string]*models.UserLedger) error {
		return fn(&models.Storage{Version: models.StorageVersion, Ledgers: ledgers})
	})
	return nil
}

func (ls *LedgerService) hooks() (models.HistoryArchiveInterface, providers.MetricsProviderInterface) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.archive, ls.metrics
}

func (ls *LedgerService) Credit(ctx context.Context, req *models.CreditRequest) (*models.CreditResult, error) {
	archive, metrics := ls.hooks()

	if err := req.Validate(); err != nil {
		metrics.IncCredits(providers.CreditOutcomeRejected)
		return nil, err
	}

	claimed := false
	if req.ReportID != "" && ls.guard != nil {
		ok, err := ls.guard.Claim(ctx, req.UserID, req.ReportID)
		switch {
		case err != nil:
			// Guard outage must not block crediting.
			ls.logger.Warnf(providers.TypePost, "Report guard unavailable, crediting %s without dedup: %s", req.UserID, err)
		case !ok:
			metrics.IncCredits(providers.CreditOutcomeDuplicate)
			return ls.duplicateResult(ctx, req.UserID)
		default:
			claimed = true
		}
	}

	reward := models.ComputeReward(req.Sample())
	now := ls.clock.Now().UTC()

	// Evicted entries are archived under the user's lock. A failed commit also
	// leaves them in the live history, readers drop such duplicates by entry id.
	ledger, err := ls.repo.Apply(ctx, req.UserID, req.Identity, func(l *models.UserLedger) error {
		evicted := l.ApplyCredit(req, reward, ls.historyLimit, now)
		if len(evicted) > 0 && archive != nil {
			archive.Archive(req.UserID, evicted)
			metrics.SetArchivePending(archive.PendingCount())
		}
		return nil
	})
	if err != nil {
		if claimed {
			ls.guard.Release(context.WithoutCancel(ctx), req.UserID, req.ReportID)
		}
		metrics.IncCredits(providers.CreditOutcomeFailed)
		if !errors.Is(err, models.ErrStorageFailure) {
			err = fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
		}
		return nil, err
	}

	if reward > 0 {
		metrics.IncCredits(providers.CreditOutcomeCredited)
		metrics.AddTokensAwarded(reward)
	} else {
		metrics.IncCredits(providers.CreditOutcomeZero)
	}

	return &models.CreditResult{
		Success:          true,
		TokensEarned:     reward,
		TotalTokens:      ledger.Tokens,
		SeedingStats:     ledger.SeedingStats,
		SeedingRank:      models.ClassifyRank(ledger.SeedingStats),
		TelegramIdentity: ledger.TelegramIdentity,
	}, nil
}

func (ls *LedgerService) duplicateResult(ctx context.Context, userID string) (*models.CreditResult, error) {
	result := &models.CreditResult{
		Success:     true,
		SeedingRank: models.RankStarter,
		Duplicate:   true,
	}
	ledger, err := ls.repo.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	result.TotalTokens = ledger.Tokens
	result.SeedingStats = ledger.SeedingStats
	result.SeedingRank = models.ClassifyRank(ledger.SeedingStats)
	result.TelegramIdentity = ledger.TelegramIdentity
	return result, nil
}

func (ls *LedgerService) get(ctx context.Context, userID string) (*models.UserLedger, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", models.ErrInvalidRequest)
	}
	ledger, err := ls.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	return ledger, nil
}

func (ls *LedgerService) GetUserMetrics(ctx context.Context, userID string) (*models.UserMetrics, error) {
	ledger, err := ls.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return models.NewUserMetrics(ledger), nil
}

// GetHistory returns archived entries followed by the live history, oldest first.
func (ls *LedgerService) GetHistory(ctx context.Context, userID string) ([]models.HistoryEntry, error) {
	ledger, err := ls.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	archive, _ := ls.hooks()
	if archive == nil || !archive.Has(userID) {
		return ledger.History, nil
	}

	archived, err := archive.Load(userID)
	if err != nil {
		ls.logger.Errorf(providers.TypeGet, "Failed to load archived history for %s: %s", userID, err)
		return ledger.History, nil
	}
	seen := make(map[string]struct{}, len(archived)+len(ledger.History))
	for _, h := range ledger.History {
		seen[h.ID] = struct{}{}
	}
	out := make([]models.HistoryEntry, 0, len(archived)+len(ledger.History))
	for _, h := range archived {
		if _, ok := seen[h.ID]; ok {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, h)
	}
	return append(out, ledger.History...), nil
}

func (ls *LedgerService) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	var (
		ledgers []*models.UserLedger
		err     error
	)
	if top, ok := ls.repo.(TopLister); ok {
		ledgers, err = top.Top(ctx, ls.leaderboardSize)
	} else {
		ledgers, err = ls.repo.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorageFailure, err)
	}
	return models.BuildLeaderboard(ledgers, ls.leaderboardSize), nil
}

// LedgerCount is best effort and returns 0 when the repository cannot answer within a second.
func (ls *LedgerService) LedgerCount() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := ls.repo.Count(ctx)
	if err != nil {
		ls.logger.Warnf(providers.TypeApp, "Failed to count ledgers: %s", err)
		return 0
	}
	return n
}

func (ls *LedgerService) GetSnapshot() (*models.Storage, error) {
	s, ok := ls.repo.(Snapshotter)
	if !ok {
		return nil, ErrSnapshotUnsupported
	}
	return &models.Storage{
		Version: models.StorageVersion,
		Ledgers: s.Snapshot(),
	}, nil
}

func (ls *LedgerService) PutLedgers(ledgers map[string]*models.UserLedger) error {
	s, ok := ls.repo.(Snapshotter)
	if !ok {
		return ErrSnapshotUnsupported
	}
	s.PutData(ledgers)
	return nil
}
