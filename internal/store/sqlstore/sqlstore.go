// Package sqlstore implémente les dépôts sur une base relationnelle via GORM (SQLite par défaut).
package sqlstore

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/store"
)

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open ouvre la base, applique les migrations et limite le pool à une connexion
// (SQLite n'accepte qu'un écrivain à la fois).
func Open(dsn string, level logger.LogLevel) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("ouverture base %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Category{}, &models.Product{}, &models.User{}, &models.Order{}, &models.OrderItem{}); err != nil {
		return nil, fmt.Errorf("migration: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// notFound traduit l'absence de ligne GORM en models.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return err
}

func conflict(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.ErrConflict
	}
	return err
}
