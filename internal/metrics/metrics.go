// Package metrics - метрики Prometheus для проходов синхронизации.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PassesTotal считает проходы по результату: "ok" или "failed".
	PassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_sync_passes_total",
		Help: "Total number of synchronization passes",
	}, []string{"result"})

	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "compass_sync_pass_duration_seconds",
		Help:    "Duration of synchronization passes",
		Buckets: prometheus.DefBuckets,
	})

	NewEntitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_sync_new_entities_total",
		Help: "Total number of newly persisted entities",
	}, []string{"kind"})

	AttachmentFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_sync_attachment_fetches_total",
		Help: "Total number of attachment payload downloads",
	}, []string{"result"})

	// EntityFailuresTotal считает ошибки отдельных сущностей по виду и причине.
	EntityFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_sync_entity_failures_total",
		Help: "Total number of entities skipped because of a parse, fetch or storage failure",
	}, []string{"kind", "reason"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compass_sync_notifications_total",
		Help: "Total number of composed notifications by publish outcome",
	}, []string{"result"})
)
