package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// fileStore хранит состояние в обычных файлах:
//   - <root>/<kind>/<id>.json (запись, отформатированная вызывающим кодом)
//   - <root>/<kind>/<id>.bin  (бинарное содержимое)
//
// Запись идёт во временный файл в том же каталоге и переименовывается на место,
// поэтому существующий файл всегда записан полностью.
type fileStore struct {
	root string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config) (*fileStore, error) {
	root := strings.TrimSpace(cfg.Path)
	if root == "" {
		return nil, errors.New("storage path is required for file driver")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{root: root}, nil
}

func (s *fileStore) path(kind string, id int64, ext string) string {
	return filepath.Join(s.root, kind, strconv.FormatInt(id, 10)+ext)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping проверяет, что корневой каталог доступен.
func (s *fileStore) Ping(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	_, err := os.Stat(s.root)
	return err
}

func (s *fileStore) Has(ctx context.Context, kind string, id int64) (bool, error) {
	_ = ctx
	return s.exists(s.path(kind, id, ".json"))
}

func (s *fileStore) Put(ctx context.Context, kind string, id int64, body []byte) (bool, error) {
	_ = ctx
	return s.writeOnce(s.path(kind, id, ".json"), body)
}

func (s *fileStore) Get(ctx context.Context, kind string, id int64) ([]byte, bool, error) {
	_ = ctx
	return s.read(s.path(kind, id, ".json"))
}

func (s *fileStore) List(ctx context.Context, kind string) ([][]byte, error) {
	dir := filepath.Join(s.root, kind)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([][]byte, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *fileStore) HasBlob(ctx context.Context, kind string, id int64) (bool, error) {
	_ = ctx
	return s.exists(s.path(kind, id, ".bin"))
}

func (s *fileStore) PutBlob(ctx context.Context, kind string, id int64, data []byte) (bool, error) {
	_ = ctx
	return s.writeOnce(s.path(kind, id, ".bin"), data)
}

func (s *fileStore) GetBlob(ctx context.Context, kind string, id int64) ([]byte, bool, error) {
	_ = ctx
	return s.read(s.path(kind, id, ".bin"))
}

func (s *fileStore) exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *fileStore) read(path string) ([]byte, bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *fileStore) writeOnce(path string, data []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	ok, err := s.exists(path)
	if err != nil || ok {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return false, err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return false, fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return false, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	return true, nil
}
