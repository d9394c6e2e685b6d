package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Database инкапсулирует пул соединений к PostgreSQL.
type Database struct {
	Pool *pgxpool.Pool
}

const schema = `
	CREATE TABLE IF NOT EXISTS entity_records (
		kind TEXT NOT NULL,
		id BIGINT NOT NULL,
		body JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		PRIMARY KEY (kind, id)
	);

	CREATE TABLE IF NOT EXISTS entity_blobs (
		kind TEXT NOT NULL,
		id BIGINT NOT NULL,
		data BYTEA NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		PRIMARY KEY (kind, id)
	);
`

// NewDB создаёт новый пул соединений по connString и применяет схему.
func NewDB(ctx context.Context, connString string) (*Database, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	database := &Database{Pool: pool}
	if err := database.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return database, nil
}

// Migrate создаёт таблицы записей и бинарных вложений, если их ещё нет.
func (db *Database) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("unable to apply schema: %w", err)
	}
	return nil
}

// Close закрывает пул соединений.
func (db *Database) Close() error {
	db.Pool.Close()
	return nil
}

// Ping проверяет доступность базы.
func (db *Database) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Has сообщает, есть ли запись (kind, id).
func (db *Database) Has(ctx context.Context, kind string, id int64) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM entity_records WHERE kind = $1 AND id = $2)
    `, kind, id).Scan(&exists)
	return exists, err
}

// Put сохраняет запись. Если запись с таким (kind, id) уже есть, операция игнорируется
// и возвращается false.
func (db *Database) Put(ctx context.Context, kind string, id int64, body []byte) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
        INSERT INTO entity_records (kind, id, body)
        VALUES ($1, $2, $3)
        ON CONFLICT (kind, id) DO NOTHING
    `, kind, id, string(body))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Get возвращает сохранённую запись.
func (db *Database) Get(ctx context.Context, kind string, id int64) ([]byte, bool, error) {
	var body string
	err := db.Pool.QueryRow(ctx, `
        SELECT jsonb_pretty(body) FROM entity_records WHERE kind = $1 AND id = $2
    `, kind, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(body), true, nil
}

// List возвращает все записи вида kind в порядке id.
func (db *Database) List(ctx context.Context, kind string) ([][]byte, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT jsonb_pretty(body) FROM entity_records WHERE kind = $1 ORDER BY id
    `, kind)
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

// HasBlob сообщает, сохранено ли содержимое (kind, id), независимо от наличия записи.
func (db *Database) HasBlob(ctx context.Context, kind string, id int64) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM entity_blobs WHERE kind = $1 AND id = $2)
    `, kind, id).Scan(&exists)
	return exists, err
}

// PutBlob сохраняет содержимое один раз; повторная запись игнорируется.
func (db *Database) PutBlob(ctx context.Context, kind string, id int64, data []byte) (bool, error) {
	if data == nil {
		data = []byte{}
	}
	tag, err := db.Pool.Exec(ctx, `
        INSERT INTO entity_blobs (kind, id, data)
        VALUES ($1, $2, $3)
        ON CONFLICT (kind, id) DO NOTHING
    `, kind, id, data)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetBlob возвращает сохранённое содержимое.
func (db *Database) GetBlob(ctx context.Context, kind string, id int64) ([]byte, bool, error) {
	var data []byte
	err := db.Pool.QueryRow(ctx, `
        SELECT data FROM entity_blobs WHERE kind = $1 AND id = $2
    `, kind, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
