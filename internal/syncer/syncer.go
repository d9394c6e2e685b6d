package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"compass_sync/internal/fetcher"
	"compass_sync/internal/logger"
	"compass_sync/internal/metrics"
	"compass_sync/internal/models"
	"compass_sync/internal/repository"
)

// RemoteFeedClient - источник сырых записей и содержимого вложений.
type RemoteFeedClient interface {
	FetchNewsFeed(ctx context.Context) ([]models.RawRecord, error)
	FetchMessages(ctx context.Context) ([]models.RawRecord, error)
	FetchAttachment(ctx context.Context, id int64) ([]byte, error)
}

// Failure - ошибка, ограниченная одной сущностью. ID равен 0, если запись не удалось разобрать.
type Failure struct {
	Kind models.Kind
	ID   int64
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %d: %v", f.Kind, f.ID, f.Err)
}

// Result - итог одного прохода: впервые сохранённые сообщения и новости
// в хронологическом порядке и ошибки отдельных сущностей.
type Result struct {
	NewMessages  []models.Message
	NewNewsItems []models.NewsItem
	Failures     []Failure
}

// Empty сообщает, что проход не нашёл ничего нового.
func (r *Result) Empty() bool {
	return len(r.NewMessages) == 0 && len(r.NewNewsItems) == 0
}

// Orchestrator выполняет проходы синхронизации. Одновременно должен выполняться только один проход.
type Orchestrator struct {
	client      RemoteFeedClient
	messages    *repository.Messages
	news        *repository.NewsItems
	attachments *repository.Attachments
}

// New создаёт оркестратор поверх клиента и репозиториев.
func New(client RemoteFeedClient, messages *repository.Messages, news *repository.NewsItems, attachments *repository.Attachments) *Orchestrator {
	return &Orchestrator{
		client:      client,
		messages:    messages,
		news:        news,
		attachments: attachments,
	}
}

// Run выполняет один проход. Ошибка получения списков прерывает проход до любых записей;
// ошибки отдельных сущностей собираются в Result.Failures, а проход продолжается.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	log := logger.Log.WithField("service", "syncer")

	res, err := o.run(ctx, log)
	metrics.PassDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PassesTotal.WithLabelValues("failed").Inc()
		log.WithError(err).Error("Synchronization pass failed")
		return nil, err
	}
	metrics.PassesTotal.WithLabelValues("ok").Inc()

	log.WithFields(logger.Fields{
		"new_messages":   len(res.NewMessages),
		"new_news_items": len(res.NewNewsItems),
		"failures":       len(res.Failures),
		"duration":       time.Since(start).String(),
	}).Info("Synchronization pass finished")
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, log *logger.Entry) (*Result, error) {
	rawMessages, err := o.client.FetchMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	rawNews, err := o.client.FetchNewsFeed(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch news feed: %w", err)
	}
	log.WithFields(logger.Fields{
		"messages":   len(rawMessages),
		"news_items": len(rawNews),
	}).Debug("Fetched remote records")

	res := &Result{}
	messages := parseAll(res, models.KindMessage, rawMessages, models.ParseMessage)
	items := parseAll(res, models.KindNewsItem, rawNews, models.ParseNewsItem)
	models.SortMessages(messages)
	models.SortNewsItems(items)

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.syncMessage(ctx, res, msg)
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.syncNewsItem(ctx, res, item)
	}

	for _, f := range res.Failures {
		log.WithError(f.Err).WithFields(logger.Fields{"kind": f.Kind, "id": f.ID}).Warn("Entity skipped")
	}
	return res, nil
}

func parseAll[T models.Entity](res *Result, kind models.Kind, raw []models.RawRecord, parse func(models.RawRecord) (T, error)) []T {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		entity, err := parse(r)
		if err != nil {
			res.fail(kind, 0, err)
			continue
		}
		out = append(out, entity)
	}
	return out
}

func (o *Orchestrator) syncMessage(ctx context.Context, res *Result, msg models.Message) {
	seen, err := o.messages.Exists(ctx, msg.ID)
	if err != nil {
		res.fail(models.KindMessage, msg.ID, err)
		return
	}
	if seen {
		return
	}
	written, err := o.messages.Save(ctx, msg)
	if err != nil {
		res.fail(models.KindMessage, msg.ID, err)
		return
	}
	if written {
		res.NewMessages = append(res.NewMessages, msg)
		metrics.NewEntitiesTotal.WithLabelValues(string(models.KindMessage)).Inc()
	}
}

// syncNewsItem сохраняет вложения по порядку, затем саму новость.
// Ошибка любого вложения оставляет новость несохранённой до следующего прохода.
func (o *Orchestrator) syncNewsItem(ctx context.Context, res *Result, item models.NewsItem) {
	seen, err := o.news.Exists(ctx, item.ID)
	if err != nil {
		res.fail(models.KindNewsItem, item.ID, err)
		return
	}
	if seen {
		return
	}

	attachments := make([]models.Attachment, 0, len(item.Attachments))
	for _, att := range item.Attachments {
		if err := o.syncAttachment(ctx, att); err != nil {
			res.fail(models.KindNewsItem, item.ID, err)
			return
		}
		attachments = append(attachments, att.Metadata())
	}
	item.Attachments = attachments

	written, err := o.news.Save(ctx, item)
	if err != nil {
		res.fail(models.KindNewsItem, item.ID, err)
		return
	}
	if written {
		res.NewNewsItems = append(res.NewNewsItems, item)
		metrics.NewEntitiesTotal.WithLabelValues(string(models.KindNewsItem)).Inc()
	}
}

// syncAttachment скачивает содержимое, только если его ещё нет в хранилище.
func (o *Orchestrator) syncAttachment(ctx context.Context, att models.Attachment) error {
	hasPayload, err := o.attachments.HasPayload(ctx, att.ID)
	if err != nil {
		return err
	}
	att.Data = nil
	if !hasPayload {
		data, err := o.client.FetchAttachment(ctx, att.ID)
		if err != nil {
			metrics.AttachmentFetchesTotal.WithLabelValues("failed").Inc()
			return fmt.Errorf("fetch attachment %d: %w", att.ID, err)
		}
		metrics.AttachmentFetchesTotal.WithLabelValues("ok").Inc()
		if data == nil {
			data = []byte{}
		}
		att.Data = data
	}
	if _, err := o.attachments.Save(ctx, att); err != nil {
		return fmt.Errorf("save attachment %d: %w", att.ID, err)
	}
	return nil
}

func (r *Result) fail(kind models.Kind, id int64, err error) {
	r.Failures = append(r.Failures, Failure{Kind: kind, ID: id, Err: err})
	metrics.EntityFailuresTotal.WithLabelValues(string(kind), reason(err)).Inc()
}

func reason(err error) string {
	switch {
	case errors.Is(err, models.ErrMalformedRecord):
		return "malformed"
	case errors.Is(err, fetcher.ErrAuthentication):
		return "auth"
	case errors.Is(err, fetcher.ErrTransport):
		return "transport"
	case errors.Is(err, repository.ErrIO):
		return "storage"
	default:
		return "other"
	}
}
