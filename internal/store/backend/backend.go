// Package backend ouvre le store choisi par STORE_BACKEND.
package backend

import (
	"context"
	"fmt"

	"gorm.io/gorm/logger"

	"boutique_back_end/internal/config"
	"boutique_back_end/internal/database"
	"boutique_back_end/internal/store"
	"boutique_back_end/internal/store/scylla"
	"boutique_back_end/internal/store/sqlstore"
)

// Open crée le schéma si besoin (AutoMigrate ou CQL) avant de rendre la main.
func Open(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "scylla":
		session, err := database.ConnectScylla(database.ScyllaConfig{
			Hosts:    cfg.ScyllaHosts,
			Keyspace: cfg.ScyllaKeyspace,
			Username: cfg.ScyllaUsername,
			Password: cfg.ScyllaPassword,
		})
		if err != nil {
			return nil, err
		}
		s := scylla.New(session)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil

	case "sql":
		level := logger.Warn
		if cfg.IsDevelopment() {
			level = logger.Info
		}
		s, err := sqlstore.Open(cfg.SQLDSN, level)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("backend de stockage inconnu: %q", cfg.StoreBackend)
}
