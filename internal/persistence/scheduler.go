package persistence

import (
	"github.com/roylee0704/gron"
	"streamflix/internal/models"
	"streamflix/internal/persistence/interfaces"
	"streamflix/internal/providers"
	"streamflix/internal/services"
	"streamflix/internal/structures"
	"sync"
	"time"
)

type Scheduler struct {
	config      *structures.Config
	logger      providers.Logger
	service     services.LedgerServiceInterface
	fileManager *FileManager
	archive     *HistoryArchive
	metrics     providers.MetricsProviderInterface
	cron        *gron.Cron
	opsMu       sync.Mutex
}

func (s *Scheduler) snapshots() bool {
	return s.config.Storage.Driver == "" || s.config.Storage.Driver == "file"
}

func (s *Scheduler) Init() {
	s.cron = gron.New()
	interval := s.config.Persistence.SaveInterval

	if s.snapshots() && !s.installSyncWrites() {
		s.cron.AddFunc(gron.Every(interval), func() {
			if err := s.PersistSnapshot(); err != nil {
				return
			}
			s.logger.Debugf(providers.TypeApp, "Persisted ledgers to file %s", s.config.Persistence.FilePath)
		})
	}

	if s.archive != nil {
		s.cron.AddFunc(gron.Every(interval), func() {
			s.opsMu.Lock()
			defer s.opsMu.Unlock()
			s.flushArchive()
		})
	}

	s.cron.Start()
}

// installSyncWrites makes every credit write the snapshot before it is acknowledged.
// It falls back to periodic snapshots when the service cannot run commit hooks.
func (s *Scheduler) installSyncWrites() bool {
	if !s.config.Persistence.SyncWrites {
		return false
	}
	if err := s.service.SetCommitHook(s.persistCommitted); err != nil {
		s.logger.Warnf(providers.TypeApp, "Synchronous writes unavailable, using periodic snapshots: %s", err)
		return false
	}
	return true
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) Restore() error {
	if s.archive != nil {
		if err := s.archive.RestoreIndex(); err != nil {
			return err
		}
	}
	if !s.snapshots() {
		return nil
	}
	return s.fileManager.LoadFromFile(s.config.Persistence.FilePath)
}

// PersistSnapshot writes the ledger snapshot. It is a no-op for drivers without snapshots.
func (s *Scheduler) PersistSnapshot() error {
	if !s.snapshots() {
		return nil
	}
	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	return s.saveSnapshot()
}

func (s *Scheduler) saveSnapshot() error {
	return s.observe(func() error {
		return s.fileManager.SaveToFile(s.config.Persistence.FilePath)
	})
}

// persistCommitted runs inside a ledger commit; an error rejects the credit.
func (s *Scheduler) persistCommitted(storage *models.Storage) error {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	return s.observe(func() error {
		return s.fileManager.SaveStorage(s.config.Persistence.FilePath, storage)
	})
}

func (s *Scheduler) observe(save func() error) error {
	start := time.Now()
	err := save()
	s.metrics.ObservePersistenceDuration(time.Since(start))
	if err != nil {
		s.logger.Errorf(providers.TypeApp, "Error while persisting data: %s", err)
	}
	return err
}

func (s *Scheduler) flushArchive() {
	if err := s.archive.Flush(); err != nil {
		s.logger.Errorf(providers.TypeApp, "Error while flushing history archive: %s", err)
	}
	s.metrics.SetArchivePending(s.archive.PendingCount())
}

func (s *Scheduler) Persist() error {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	if s.archive != nil {
		s.flushArchive()
	}
	if !s.snapshots() {
		return nil
	}

	s.logger.Infof(providers.TypeApp, "Persisting ledgers to file...")
	return s.saveSnapshot()
}

func NewScheduler(config *structures.Config, logger providers.Logger, service services.LedgerServiceInterface, fileManager *FileManager, archive *HistoryArchive, metrics providers.MetricsProviderInterface) interfaces.SchedulerInterface {
	return &Scheduler{
		config:      config,
		logger:      logger,
		service:     service,
		fileManager: fileManager,
		archive:     archive,
		metrics:     metrics,
	}
}
