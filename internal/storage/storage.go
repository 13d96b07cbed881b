// Package storage opens the Store backend selected by configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store/memory"
	pgstore "github.com/Adithya-Monish-Kumar-K/newsindex/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/store/sqlite"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/newsindex/pkg/postgres"
)

// Open connects to the configured backend. When migrate is set the schema is
// created before the store is returned.
func Open(ctx context.Context, cfg *config.Config, migrate bool) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "memory":
		s = memory.New()
	case "sqlite":
		s, err = sqlite.Open(cfg.Store.SQLitePath)
	case "postgres":
		var client *postgres.Client
		client, err = postgres.New(ctx, cfg.Postgres)
		if err == nil {
			s = pgstore.New(client)
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	slog.Info("store opened", "driver", cfg.Store.Driver)

	if migrate {
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrating %s store: %w", cfg.Store.Driver, err)
		}
	}
	return s, nil
}
