package storage

import (
	"context"
	"errors"
	"strings"

	"compass_sync/internal/db"
)

// Backend - хранилище записей, которое умеет хранить и содержимое.
type Backend interface {
	Store
	BlobStore
	Ping(ctx context.Context) error
}

// Open открывает хранилище записей выбранного драйвера. Каждый драйвер реализует
// и BlobStore, поэтому результат служит хранилищем содержимого по умолчанию.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "file":
		st, err := openFile(cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite", "sqlite3":
		st, err := openSQLite(cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, errors.New("postgres connection string is required")
		}
		database, err := db.NewDB(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return database, nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
