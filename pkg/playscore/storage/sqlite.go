package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/playscore/pkg/models"
	"github.com/himanishpuri/playscore/pkg/utils"
)

const errDBClientNil = "db client is nil"

// ErrNotFound is returned when no conversion has the requested id.
var ErrNotFound = errors.New("conversion not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Conversion is the history table row.
type Conversion struct {
	ID         string   `gorm:"primaryKey;type:varchar(36)"`
	Mode       string   `gorm:"index:idx_mode"`
	Inputs     []string `gorm:"serializer:json"`
	Output     string
	Code       string `gorm:"index:idx_code"`
	Kind       string
	Parts      int
	DurationMs int64
	CreatedAt  time.Time `gorm:"index:idx_created_at"`
}

// NewDBClient opens (creating if needed) the history database at dbPath.
func NewDBClient(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := utils.MakeDir(dir); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// sqlite serializes writers; one connection avoids SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Conversion{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RecordConversion stores rec, assigning an id and timestamp when unset, and
// returns the id.
func (c *DBClient) RecordConversion(rec models.Conversion) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}
	if rec.ID == "" {
		rec.ID = utils.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	row := fromModel(rec)
	if err := c.DB.Create(&row).Error; err != nil {
		return "", fmt.Errorf("inserting conversion: %w", err)
	}
	return row.ID, nil
}

// ListConversions returns the most recent conversions first. A limit of zero
// or less returns all of them.
func (c *DBClient) ListConversions(limit int) ([]models.Conversion, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	q := c.DB.Order("created_at DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []Conversion
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing conversions: %w", err)
	}

	out := make([]models.Conversion, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (c *DBClient) GetConversion(id string) (*models.Conversion, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var row Conversion
	err := c.DB.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversion: %w", err)
	}
	m := row.toModel()
	return &m, nil
}

func (c *DBClient) DeleteConversion(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}

	res := c.DB.Where("id = ?", id).Delete(&Conversion{})
	if res.Error != nil {
		return fmt.Errorf("deleting conversion: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func fromModel(m models.Conversion) Conversion {
	return Conversion{
		ID:         m.ID,
		Mode:       m.Mode,
		Inputs:     m.Inputs,
		Output:     m.Output,
		Code:       m.Code,
		Kind:       m.Kind,
		Parts:      m.Parts,
		DurationMs: m.DurationMs,
		CreatedAt:  m.CreatedAt,
	}
}

func (r Conversion) toModel() models.Conversion {
	return models.Conversion{
		ID:         r.ID,
		Mode:       r.Mode,
		Inputs:     r.Inputs,
		Output:     r.Output,
		Code:       r.Code,
		Kind:       r.Kind,
		Parts:      r.Parts,
		DurationMs: r.DurationMs,
		CreatedAt:  r.CreatedAt,
	}
}
