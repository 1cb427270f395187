package playscore

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/playscore/pkg/models"
	"github.com/himanishpuri/playscore/pkg/playscore/storage"
)

var (
	// ErrHistoryDisabled is returned by the history calls when no database
	// is configured.
	ErrHistoryDisabled = errors.New("conversion history is disabled")
	// ErrConversionNotFound is returned when no recorded conversion has the
	// requested id.
	ErrConversionNotFound = errors.New("conversion not found")
)

// storageAdapter adapts the storage.DBClient to implement the Storage interface.
type storageAdapter struct {
	db *storage.DBClient
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClient(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db}, nil
}

func (s *storageAdapter) RecordConversion(rec models.Conversion) (string, error) {
	return s.db.RecordConversion(rec)
}

func (s *storageAdapter) ListConversions(limit int) ([]models.Conversion, error) {
	return s.db.ListConversions(limit)
}

func (s *storageAdapter) GetConversion(id string) (*models.Conversion, error) {
	rec, err := s.db.GetConversion(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrConversionNotFound)
	}
	return rec, err
}

func (s *storageAdapter) DeleteConversion(id string) error {
	err := s.db.DeleteConversion(id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", id, ErrConversionNotFound)
	}
	return err
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}

// nopStorage keeps nothing.
type nopStorage struct{}

func (nopStorage) RecordConversion(models.Conversion) (string, error) { return "", nil }

func (nopStorage) ListConversions(int) ([]models.Conversion, error) {
	return nil, ErrHistoryDisabled
}

func (nopStorage) GetConversion(string) (*models.Conversion, error) {
	return nil, ErrHistoryDisabled
}

func (nopStorage) DeleteConversion(string) error { return ErrHistoryDisabled }

func (nopStorage) Close() error { return nil }
