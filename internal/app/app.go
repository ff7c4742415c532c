// Package app wires configuration, persistence, and the metastore manager
// into a runnable application.
package app

import (
	"fmt"
	"log/slog"

	"icemeta/internal/config"
	"icemeta/internal/db"
	"icemeta/internal/db/crypto"
	"icemeta/internal/db/repository"
	"icemeta/internal/domain"
	"icemeta/internal/memstore"
	"icemeta/internal/metastore"
	"icemeta/internal/secrets"
	"icemeta/internal/storage"
)

// App holds the assembled application.
type App struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	Manager domain.MetastoreManager

	closers []func() error
}

// Build constructs the persistence backend and manager selected by the
// configuration. The transactional strategy runs over SQLite; the atomic
// strategy runs over the in-memory store.
func Build(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Logger: logger}

	provider := &storage.Provider{
		AzureAccountKey:    cfg.AzureAccountKey,
		CredentialDuration: cfg.CredentialDuration,
	}
	opts := metastore.Options{
		Logger:            logger,
		StorageProvider:   provider,
		TaskTimeoutMillis: cfg.TaskTimeoutMillis,
		Secrets:           secrets.NewManager(),
	}

	switch cfg.Strategy {
	case config.StrategyTransactional:
		pools, err := db.Open(cfg.MetaDBPath, 0)
		if err != nil {
			return nil, fmt.Errorf("open metastore database: %w", err)
		}
		a.closers = append(a.closers, pools.Close)
		if err := pools.Migrate(); err != nil {
			a.close()
			return nil, fmt.Errorf("migrate metastore database: %w", err)
		}
		enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("build encryptor: %w", err)
		}
		a.Manager = metastore.NewTransactionalManager(repository.New(pools.Write, pools.Read, enc), opts)

	case config.StrategyAtomic:
		a.Manager = metastore.NewAtomicManager(memstore.New(), opts)

	default:
		return nil, fmt.Errorf("unknown persistence strategy %q", cfg.Strategy)
	}

	return a, nil
}

// Close releases the application's resources.
func (a *App) Close() error {
	return a.close()
}

func (a *App) close() error {
	var first error
	for _, closer := range a.closers {
		if err := closer(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
