package persistence

import (
	"bytes"
	"fmt"
	json "github.com/goccy/go-json"
	"os"
	"path/filepath"
	"streamflix/internal/models"
	"streamflix/internal/persistence/interfaces"
	"streamflix/internal/providers"
	"streamflix/internal/services"
)

type FileManager struct {
	service    services.LedgerServiceInterface
	compressor interfaces.CompressorInterface
	logger     providers.Logger
}

func NewFileManager(compressor interfaces.CompressorInterface, service services.LedgerServiceInterface, logger providers.Logger) *FileManager {
	return &FileManager{
		compressor: compressor,
		service:    service,
		logger:     logger,
	}
}

func (f *FileManager) SaveToFile(fileName string) error {
	storage, err := f.service.GetSnapshot()
	if err != nil {
		return err
	}
	return f.SaveStorage(fileName, storage)
}

// SaveStorage atomically replaces fileName with storage.
func (f *FileManager) SaveStorage(fileName string, storage *models.Storage) error {
	jsonData, err := json.Marshal(storage)
	if err != nil {
		return err
	}
	data, err := f.compressor.Compress(jsonData)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fileName), 0755); err != nil {
		return err
	}
	tmpFile := fileName + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	if err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}

	return os.Rename(tmpFile, fileName)
}

func (f *FileManager) LoadFromFile(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	decompressedData, err := f.compressor.Decompress(data)
	if err != nil {
		// The lightweight layout may be stored as plain JSON.
		if !looksLikeJSON(data) {
			return fmt.Errorf("decompress %s: %w", fileName, err)
		}
		decompressedData = data
	}

	var storage models.Storage
	if err := json.Unmarshal(decompressedData, &storage); err == nil && storage.Ledgers != nil {
		if storage.Version > models.StorageVersion {
			return fmt.Errorf("snapshot version %d is newer than supported version %d", storage.Version, models.StorageVersion)
		}
		return f.service.PutLedgers(storage.Ledgers)
	}

	f.logger.Warnf(providers.TypeApp, "Snapshot envelope not found, trying to migrate from the points layout")
	var points map[string]*models.PointsRecord
	if err := json.Unmarshal(decompressedData, &points); err != nil {
		f.logger.Warnf(providers.TypeApp, "Migration failed")
		return err
	}

	ledgers := make(map[string]*models.UserLedger, len(points))
	for userID, rec := range points {
		if rec == nil {
			continue
		}
		ledgers[userID] = models.LedgerFromPoints(userID, rec)
	}
	f.logger.Warnf(providers.TypeApp, "Migration from the points layout successful, %d ledgers", len(ledgers))
	return f.service.PutLedgers(ledgers)
}

func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
