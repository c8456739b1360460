package persistence

import (
	"fmt"
	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"os"
	"path/filepath"
	"streamflix/internal/models"
	"streamflix/internal/persistence/interfaces"
	"streamflix/internal/providers"
	"streamflix/internal/services"
	"streamflix/internal/structures"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	archiveFilePrefix = "history-"
	archiveFileSuffix = ".cold.zst"
	DefaultBuckets    = 16
)

// ArchiveEntry is the evicted history of one user.
type ArchiveEntry struct {
	History   []models.HistoryEntry `json:"history"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// ArchiveFile is the on-disk format of one bucket.
type ArchiveFile struct {
	Entries map[string]*ArchiveEntry `json:"entries"`
}

// HistoryArchive keeps history entries evicted from ledgers. Users are spread
// over a fixed number of bucket files; Archive only buffers, Flush writes.
type HistoryArchive struct {
	mu           sync.RWMutex
	dir          string
	buckets      int
	index        map[string]struct{}                      // users with archived history
	pending      map[int]map[string][]models.HistoryEntry // bucket → user → entries
	pendingCount int
	loaded       map[int]*ArchiveFile // bucket → cached file
	ttl          time.Duration
	clock        clockwork.Clock
	compressor   interfaces.CompressorInterface
	logger       providers.Logger
}

func NewHistoryArchive(dir string, buckets int, ttl time.Duration, compressor interfaces.CompressorInterface, logger providers.Logger, clock clockwork.Clock) *HistoryArchive {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HistoryArchive{
		dir:        dir,
		buckets:    buckets,
		index:      make(map[string]struct{}),
		pending:    make(map[int]map[string][]models.HistoryEntry),
		loaded:     make(map[int]*ArchiveFile),
		ttl:        ttl,
		clock:      clock,
		compressor: compressor,
		logger:     logger,
	}
}

func (ha *HistoryArchive) bucketFor(userID string) int {
	return int(xxhash.Sum64String(userID) % uint64(ha.buckets))
}

// Has reports whether userID has archived history, flushed or not.
func (ha *HistoryArchive) Has(userID string) bool {
	ha.mu.RLock()
	defer ha.mu.RUnlock()
	_, ok := ha.index[userID]
	return ok
}

// Archive buffers evicted entries, skipping ids already pending for userID.
// No disk I/O is performed.
func (ha *HistoryArchive) Archive(userID string, entries []models.HistoryEntry) {
	if len(entries) == 0 {
		return
	}
	ha.mu.Lock()
	defer ha.mu.Unlock()

	b := ha.bucketFor(userID)
	if ha.pending[b] == nil {
		ha.pending[b] = make(map[string][]models.HistoryEntry)
	}
	before := len(ha.pending[b][userID])
	ha.pending[b][userID] = appendUnique(ha.pending[b][userID], entries)
	ha.pendingCount += len(ha.pending[b][userID]) - before
	ha.index[userID] = struct{}{}
}

// appendUnique appends the entries of src whose id is not in dst yet.
func appendUnique(dst, src []models.HistoryEntry) []models.HistoryEntry {
	seen := make(map[string]struct{}, len(dst)+len(src))
	for _, h := range dst {
		seen[h.ID] = struct{}{}
	}
	for _, h := range src {
		if _, ok := seen[h.ID]; ok {
			continue
		}
		seen[h.ID] = struct{}{}
		dst = append(dst, h)
	}
	return dst
}

// Load returns the archived history of userID, oldest first.
func (ha *HistoryArchive) Load(userID string) ([]models.HistoryEntry, error) {
	ha.mu.Lock()
	defer ha.mu.Unlock()

	if _, ok := ha.index[userID]; !ok {
		return nil, nil
	}

	b := ha.bucketFor(userID)
	var out []models.HistoryEntry
	file, err := ha.getOrLoadArchiveFile(b)
	if err != nil {
		return nil, err
	}
	if file != nil {
		if entry, ok := file.Entries[userID]; ok {
			out = append(out, entry.History...)
		}
	}
	return appendUnique(out, ha.pending[b][userID]), nil
}

func (ha *HistoryArchive) PendingCount() int {
	ha.mu.RLock()
	defer ha.mu.RUnlock()
	return ha.pendingCount
}

// Flush merges pending entries into their bucket files and drops entries older
// than ttl. This is the only method that writes to disk.
func (ha *HistoryArchive) Flush() error {
	ha.mu.Lock()
	defer ha.mu.Unlock()

	now := ha.clock.Now()
	for b, users := range ha.pending {
		file, err := ha.getOrLoadArchiveFile(b)
		if err != nil {
			return err
		}
		if file == nil {
			file = &ArchiveFile{Entries: make(map[string]*ArchiveEntry)}
		}

		flushed := 0
		for userID, entries := range users {
			entry, ok := file.Entries[userID]
			if !ok {
				entry = &ArchiveEntry{}
				file.Entries[userID] = entry
			}
			entry.History = appendUnique(entry.History, entries)
			entry.UpdatedAt = now
			flushed += len(entries)
		}

		if ha.ttl > 0 {
			cutoff := now.Add(-ha.ttl)
			for userID, entry := range file.Entries {
				kept := entry.History[:0]
				for _, h := range entry.History {
					if !h.Timestamp.Before(cutoff) {
						kept = append(kept, h)
					}
				}
				entry.History = kept
				if len(kept) == 0 {
					delete(file.Entries, userID)
					delete(ha.index, userID)
				}
			}
		}

		if len(file.Entries) > 0 {
			if err := ha.writeArchiveFile(b, file); err != nil {
				// The cached file already holds the pending entries; reread it next time.
				delete(ha.loaded, b)
				return err
			}
			ha.loaded[b] = file
		} else {
			os.Remove(ha.archiveFilePath(b))
			delete(ha.loaded, b)
		}

		// Commit only after a successful write.
		delete(ha.pending, b)
		ha.pendingCount -= flushed
	}
	return nil
}

// RestoreIndex scans the archive directory and rebuilds the user index. Called once at startup.
func (ha *HistoryArchive) RestoreIndex() error {
	ha.mu.Lock()
	defer ha.mu.Unlock()

	if err := os.MkdirAll(ha.dir, 0755); err != nil {
		return err
	}

	files, err := filepath.Glob(filepath.Join(ha.dir, archiveFilePrefix+"*"+archiveFileSuffix))
	if err != nil {
		return err
	}

	for _, path := range files {
		b, ok := ha.bucketFromPath(path)
		if !ok {
			ha.logger.Warnf(providers.TypeApp, "Skipping archive file %s: bucket out of range", path)
			continue
		}
		file, err := ha.loadArchiveFileFromDisk(b)
		if err != nil {
			ha.logger.Errorf(providers.TypeApp, "Failed to index archive file %s: %s", path, err)
			continue
		}
		if file == nil {
			continue
		}
		for userID := range file.Entries {
			ha.index[userID] = struct{}{}
		}
		// Only keys are indexed; data is loaded on demand.
	}
	return nil
}

// getOrLoadArchiveFile must be called under ha.mu.Lock().
func (ha *HistoryArchive) getOrLoadArchiveFile(b int) (*ArchiveFile, error) {
	if f, ok := ha.loaded[b]; ok {
		return f, nil
	}
	f, err := ha.loadArchiveFileFromDisk(b)
	if err != nil {
		return nil, err
	}
	if f != nil {
		ha.loaded[b] = f
	}
	return f, nil
}

func (ha *HistoryArchive) loadArchiveFileFromDisk(b int) (*ArchiveFile, error) {
	path := ha.archiveFilePath(b)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	decompressed, err := ha.compressor.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress archive file %s: %w", path, err)
	}

	var f ArchiveFile
	if err := json.Unmarshal(decompressed, &f); err != nil {
		return nil, fmt.Errorf("parse archive file %s: %w", path, err)
	}
	if f.Entries == nil {
		f.Entries = make(map[string]*ArchiveEntry)
	}
	return &f, nil
}

func (ha *HistoryArchive) writeArchiveFile(b int, f *ArchiveFile) error {
	jsonData, err := json.Marshal(f)
	if err != nil {
		return err
	}

	compressed, err := ha.compressor.Compress(jsonData)
	if err != nil {
		return err
	}

	path := ha.archiveFilePath(b)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, compressed, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, path)
}

func (ha *HistoryArchive) archiveFilePath(b int) string {
	return filepath.Join(ha.dir, fmt.Sprintf("%s%03d%s", archiveFilePrefix, b, archiveFileSuffix))
}

// bucketFromPath parses "history-007.cold.zst" into 7.
func (ha *HistoryArchive) bucketFromPath(path string) (int, bool) {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), archiveFilePrefix), archiveFileSuffix)
	b, err := strconv.Atoi(name)
	if err != nil || b < 0 || b >= ha.buckets {
		return 0, false
	}
	return b, true
}

// NewHistoryArchiveFromConfig builds the archive when archive.enabled and
// attaches it to service. It returns nil otherwise.
func NewHistoryArchiveFromConfig(conf *structures.Config, compressor interfaces.CompressorInterface, logger providers.Logger, service services.LedgerServiceInterface) (*HistoryArchive, error) {
	if !conf.Archive.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(conf.Archive.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	archive := NewHistoryArchive(conf.Archive.Dir, conf.Archive.Buckets, conf.Archive.TTL, compressor, logger, nil)
	service.SetHistoryArchive(archive)
	return archive, nil
}
