package main

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/infrastructure/storage"
	"chat-relay/internal"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

type store interface {
	contract.Gateway
	contract.RoomCatalog
}

// openedStore keeps the badger handle around for the debug inspector.
type openedStore struct {
	store
	badger *badger.DB
	close  func()
}

func openStore(ctx context.Context, config internal.Config, logger *slog.Logger, readOnly bool) (*openedStore, error) {
	switch config.StorageDriver {
	case internal.DriverBadger:
		db, err := badger.Open(buildBadgerOpts(config, logger, ctx, readOnly))
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		return &openedStore{
			store:  storage.NewBadgerGateway(db, logger, config.LimitMessages),
			badger: db,
			close: func() {
				logger.Info("Closing BadgerDB...")
				_ = db.Close()
			},
		}, nil

	case internal.DriverMySQL:
		db, err := storage.OpenMySQL(ctx, storage.MySQLConfig{
			User:     config.DBUser,
			Password: config.DBPassword,
			Host:     config.DBHost,
			Name:     config.DBName,
		})
		if err != nil {
			return nil, err
		}
		gateway := storage.NewMySQLGateway(db, logger, config.LimitMessages)
		if config.DBMigrate && !readOnly {
			if err := gateway.EnsureSchema(ctx); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &openedStore{store: gateway, close: func() { _ = db.Close() }}, nil

	case internal.DriverPostgres:
		pool, err := storage.OpenPostgres(ctx, config.PGURL)
		if err != nil {
			return nil, err
		}
		gateway := storage.NewPostgresGateway(pool, logger, config.LimitMessages)
		if config.DBMigrate && !readOnly {
			if err := gateway.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &openedStore{store: gateway, close: pool.Close}, nil

	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownStorageDriver, config.StorageDriver)
	}
}

// buildBadgerOpts opens read only side by side with a running relay for the
// tooling commands.
func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context, readOnly bool) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if readOnly {
		return options.WithReadOnly(true).
			WithBypassLockGuard(true).
			WithLogger(nil)
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
