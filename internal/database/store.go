package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rendimo/server/internal/models"
)

const DefaultRecentLimit = 20

var ErrAnalysisNotFound = errors.New("analysis not found")

// Store persists listing analyses.
type Store struct {
	db *gorm.DB
}

func OpenStore(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := MigrateSchema(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewTestStore returns a store backed by a private in-memory database.
func NewTestStore() (*Store, error) {
	s, err := OpenStore("file::memory:")
	if err != nil {
		return nil, err
	}
	// Every pooled connection would otherwise get its own empty database.
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return s, nil
}

func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Analysis{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Save inserts or updates an analysis, assigning an id when missing.
func (s *Store) Save(ctx context.Context, a *models.Analysis) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(a).Error; err != nil {
			return fmt.Errorf("failed to save analysis: %w", err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id string) (*models.Analysis, error) {
	var a models.Analysis
	err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Recent returns the latest analyses, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.Analysis, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	var analyses []models.Analysis
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&analyses).Error
	if err != nil {
		return nil, err
	}
	return analyses, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
