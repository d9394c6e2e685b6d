package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"compass_sync/internal/models"
	"compass_sync/internal/storage"
)

// ErrIO - запись или чтение хранилища не завершились.
var ErrIO = errors.New("repository io failure")

// Repository - идемпотентное хранилище сущностей одного вида, ключ - id.
type Repository[T models.Entity] struct {
	store storage.Store
	kind  models.Kind
}

// New создаёт репозиторий вида kind поверх store.
func New[T models.Entity](store storage.Store, kind models.Kind) *Repository[T] {
	return &Repository[T]{store: store, kind: kind}
}

// Kind возвращает вид сущностей репозитория.
func (r *Repository[T]) Kind() models.Kind {
	return r.kind
}

// Exists сообщает, сохранялась ли сущность с этим id.
func (r *Repository[T]) Exists(ctx context.Context, id int64) (bool, error) {
	ok, err := r.store.Has(ctx, string(r.kind), id)
	if err != nil {
		return false, fmt.Errorf("%w: %s %d: %v", ErrIO, r.kind, id, err)
	}
	return ok, nil
}

// Save записывает сущность, только если её id ещё не встречался.
// Возвращает false без записи, если запись уже есть: первая запись побеждает.
func (r *Repository[T]) Save(ctx context.Context, entity T) (bool, error) {
	id := entity.EntityID()
	ok, err := r.Exists(ctx, id)
	if err != nil || ok {
		return false, err
	}

	body, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode %s %d: %w", r.kind, id, err)
	}
	written, err := r.store.Put(ctx, string(r.kind), id, body)
	if err != nil {
		return false, fmt.Errorf("%w: save %s %d: %v", ErrIO, r.kind, id, err)
	}
	return written, nil
}

// Find восстанавливает сущность из сохранённой записи.
func (r *Repository[T]) Find(ctx context.Context, id int64) (T, bool, error) {
	var zero T
	body, ok, err := r.store.Get(ctx, string(r.kind), id)
	if err != nil {
		return zero, false, fmt.Errorf("%w: find %s %d: %v", ErrIO, r.kind, id, err)
	}
	if !ok {
		return zero, false, nil
	}
	entity, err := r.decode(body)
	if err != nil {
		return zero, false, err
	}
	return entity, true, nil
}

// All возвращает все сохранённые сущности; порядок не определён.
func (r *Repository[T]) All(ctx context.Context) ([]T, error) {
	bodies, err := r.store.List(ctx, string(r.kind))
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrIO, r.kind, err)
	}
	out := make([]T, 0, len(bodies))
	for _, body := range bodies {
		entity, err := r.decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func (r *Repository[T]) decode(body []byte) (T, error) {
	var entity T
	if err := json.Unmarshal(body, &entity); err != nil {
		return entity, fmt.Errorf("%w: decode %s: %v", ErrIO, r.kind, err)
	}
	return entity, nil
}

// NewsItems - репозиторий новостей.
type NewsItems = Repository[models.NewsItem]

// Messages - репозиторий сообщений.
type Messages = Repository[models.Message]

// NewNewsItems создаёт репозиторий новостей.
func NewNewsItems(store storage.Store) *NewsItems {
	return New[models.NewsItem](store, models.KindNewsItem)
}

// NewMessages создаёт репозиторий сообщений.
func NewMessages(store storage.Store) *Messages {
	return New[models.Message](store, models.KindMessage)
}

// LatestNewsItems возвращает до n последних новостей, новые первыми.
func LatestNewsItems(ctx context.Context, repo *NewsItems, n int) ([]models.NewsItem, error) {
	items, err := repo.All(ctx)
	if err != nil {
		return nil, err
	}
	models.SortNewsItems(items)
	return newestFirst(items, n), nil
}

// LatestMessages возвращает до n последних сообщений, новые первыми.
func LatestMessages(ctx context.Context, repo *Messages, n int) ([]models.Message, error) {
	msgs, err := repo.All(ctx)
	if err != nil {
		return nil, err
	}
	models.SortMessages(msgs)
	return newestFirst(msgs, n), nil
}

func newestFirst[T any](sorted []T, n int) []T {
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]T, 0, n)
	for i := len(sorted) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, sorted[i])
	}
	return out
}
