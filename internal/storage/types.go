// Package storage - долговременные хранилища под репозиториями сущностей.
//
// Все драйверы адресуют записи по (kind, id) и никогда не перезаписывают
// существующую запись: Put возвращает false, если ключ уже есть.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Store хранит одну сериализованную запись на (kind, id).
type Store interface {
	Has(ctx context.Context, kind string, id int64) (bool, error)
	// Put записывает body, только если (kind, id) ещё нет, и сообщает, была ли запись.
	Put(ctx context.Context, kind string, id int64, body []byte) (bool, error)
	Get(ctx context.Context, kind string, id int64) ([]byte, bool, error)
	List(ctx context.Context, kind string) ([][]byte, error)
	Close() error
}

// BlobStore хранит бинарное содержимое с той же адресацией, что и записи,
// независимо от наличия записи с этим ключом.
type BlobStore interface {
	HasBlob(ctx context.Context, kind string, id int64) (bool, error)
	PutBlob(ctx context.Context, kind string, id int64, data []byte) (bool, error)
	GetBlob(ctx context.Context, kind string, id int64) ([]byte, bool, error)
}

// Config задаёт хранилище.
//
// Значения Driver:
//   - "file": по одному отформатированному JSON-файлу на запись в каталоге Path, содержимое рядом
//   - "sqlite": файл базы SQLite по пути Path
//   - "postgres": PostgreSQL, Path - строка подключения
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // только sqlite; 0 - значение по умолчанию
}

// MinioConfig задаёт объектное хранилище для содержимого вложений.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}
