package worker

import (
	"context"
	"errors"
	"fmt"

	"compass_sync/internal/logger"
	"compass_sync/internal/metrics"
	"compass_sync/internal/notify"
	"compass_sync/internal/syncer"
)

// Syncer выполняет один проход синхронизации.
type Syncer interface {
	Run(ctx context.Context) (*syncer.Result, error)
}

// Composer строит уведомления по итогам прохода.
type Composer interface {
	Compose(ctx context.Context, res *syncer.Result) []notify.Payload
}

// Stats - счётчики одного прохода.
type Stats struct {
	NewMessages   int
	NewNewsItems  int
	Failures      int
	Published     int
	PublishFailed int
}

type Worker struct {
	syncer    Syncer
	composer  Composer
	publisher notify.Publisher
}

func NewWorker(s Syncer, c Composer, p notify.Publisher) *Worker {
	return &Worker{syncer: s, composer: c, publisher: p}
}

// RunPass выполняет проход, строит уведомления и передаёт их публикатору.
// Ошибка публикации одного уведомления не мешает публикации остальных.
func (w *Worker) RunPass(ctx context.Context) (Stats, error) {
	log := logger.Log.WithField("service", "worker")

	res, err := w.syncer.Run(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("sync pass: %w", err)
	}

	stats := Stats{
		NewMessages:  len(res.NewMessages),
		NewNewsItems: len(res.NewNewsItems),
		Failures:     len(res.Failures),
	}

	var errs []error
	for _, p := range w.composer.Compose(ctx, res) {
		if err := w.publisher.Publish(ctx, p); err != nil {
			stats.PublishFailed++
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			log.WithError(err).WithField("subject", p.Subject).Error("Publish failed")
			errs = append(errs, err)
			continue
		}
		stats.Published++
		metrics.NotificationsTotal.WithLabelValues("ok").Inc()
	}

	log.WithFields(logger.Fields{
		"new_messages":   stats.NewMessages,
		"new_news_items": stats.NewNewsItems,
		"published":      stats.Published,
		"publish_failed": stats.PublishFailed,
	}).Info("Pass processed")

	if len(errs) > 0 {
		return stats, fmt.Errorf("%d of %d notifications not published: %w",
			stats.PublishFailed, stats.Published+stats.PublishFailed, errors.Join(errs...))
	}
	return stats, nil
}
