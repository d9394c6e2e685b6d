package repository

import (
	"context"
	"fmt"

	"compass_sync/internal/models"
	"compass_sync/internal/storage"
)

// Attachments хранит метаданные вложений как обычные записи, а содержимое -
// отдельным бинарным объектом с тем же id. Обе записи идемпотентны,
// и наличие содержимого проверяется независимо от метаданных.
type Attachments struct {
	meta  *Repository[models.Attachment]
	blobs storage.BlobStore
}

// NewAttachments создаёт репозиторий вложений.
func NewAttachments(store storage.Store, blobs storage.BlobStore) *Attachments {
	return &Attachments{
		meta:  New[models.Attachment](store, models.KindAttachment),
		blobs: blobs,
	}
}

// Exists сообщает, сохранены ли метаданные вложения.
func (a *Attachments) Exists(ctx context.Context, id int64) (bool, error) {
	return a.meta.Exists(ctx, id)
}

// HasPayload сообщает, сохранено ли содержимое вложения.
func (a *Attachments) HasPayload(ctx context.Context, id int64) (bool, error) {
	ok, err := a.blobs.HasBlob(ctx, string(models.KindAttachment), id)
	if err != nil {
		return false, fmt.Errorf("%w: payload %d: %v", ErrIO, id, err)
	}
	return ok, nil
}

// Save сохраняет содержимое (если оно передано и ещё не сохранено), затем метаданные.
// Содержимое пишется первым, чтобы метаданные не появились раньше файла.
// Возвращает true, если была выполнена хотя бы одна запись.
func (a *Attachments) Save(ctx context.Context, att models.Attachment) (bool, error) {
	wroteData := false
	if att.Data != nil {
		var err error
		wroteData, err = a.blobs.PutBlob(ctx, string(models.KindAttachment), att.ID, att.Data)
		if err != nil {
			return false, fmt.Errorf("%w: save payload %d: %v", ErrIO, att.ID, err)
		}
	}
	wroteMeta, err := a.meta.Save(ctx, att.Metadata())
	if err != nil {
		return wroteData, err
	}
	return wroteData || wroteMeta, nil
}

// Find возвращает метаданные вместе с содержимым, если оно сохранено.
func (a *Attachments) Find(ctx context.Context, id int64) (models.Attachment, bool, error) {
	att, ok, err := a.meta.Find(ctx, id)
	if err != nil || !ok {
		return att, ok, err
	}
	data, found, err := a.Payload(ctx, id)
	if err != nil {
		return models.Attachment{}, false, err
	}
	if found {
		att.Data = data
	}
	return att, true, nil
}

// Payload возвращает только содержимое вложения.
func (a *Attachments) Payload(ctx context.Context, id int64) ([]byte, bool, error) {
	data, ok, err := a.blobs.GetBlob(ctx, string(models.KindAttachment), id)
	if err != nil {
		return nil, false, fmt.Errorf("%w: payload %d: %v", ErrIO, id, err)
	}
	return data, ok, nil
}

// All возвращает метаданные всех вложений без содержимого.
func (a *Attachments) All(ctx context.Context) ([]models.Attachment, error) {
	return a.meta.All(ctx)
}
