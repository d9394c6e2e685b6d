package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db *sql.DB
}

func openSQLite(cfg Config) (*sqliteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite рассчитан на одного писателя.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Has(ctx context.Context, kind string, id int64) (bool, error) {
	return s.has(ctx, `SELECT 1 FROM records WHERE kind = ? AND id = ?`, kind, id)
}

func (s *sqliteStore) Put(ctx context.Context, kind string, id int64, body []byte) (bool, error) {
	return s.insert(ctx,
		`INSERT INTO records(kind, id, body, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(kind, id) DO NOTHING`,
		kind, id, string(body), time.Now().UnixMilli(),
	)
}

func (s *sqliteStore) Get(ctx context.Context, kind string, id int64) ([]byte, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM records WHERE kind = ? AND id = ?`, kind, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(body), true, nil
}

func (s *sqliteStore) List(ctx context.Context, kind string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM records WHERE kind = ? ORDER BY id`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		out = append(out, []byte(body))
	}
	return out, rows.Err()
}

func (s *sqliteStore) HasBlob(ctx context.Context, kind string, id int64) (bool, error) {
	return s.has(ctx, `SELECT 1 FROM blobs WHERE kind = ? AND id = ?`, kind, id)
}

func (s *sqliteStore) PutBlob(ctx context.Context, kind string, id int64, data []byte) (bool, error) {
	if data == nil {
		data = []byte{}
	}
	return s.insert(ctx,
		`INSERT INTO blobs(kind, id, data, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(kind, id) DO NOTHING`,
		kind, id, data, time.Now().UnixMilli(),
	)
}

func (s *sqliteStore) GetBlob(ctx context.Context, kind string, id int64) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE kind = ? AND id = ?`, kind, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *sqliteStore) has(ctx context.Context, query string, kind string, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, kind, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) insert(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
