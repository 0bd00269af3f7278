package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tg-capture-bot/internal/domain"
	"tg-capture-bot/internal/infra/metrics"
)

const (
	defaultNotificationPollSeconds = 3
	defaultNotificationBatch       = 20
	maxNotificationBatch           = 100
)

// NotificationDispatcherRepo — срез NotificationRepo, нужный диспетчеру.
type NotificationDispatcherRepo interface {
	DispatchPending(ctx context.Context, send domain.SendFunc, batchSize int) (domain.DispatchResult, error)
}

// NotificationDispatcher периодически разгребает очередь ожидающих
// уведомлений.
type NotificationDispatcher struct {
	log       zerolog.Logger
	repo      NotificationDispatcherRepo
	send      domain.SendFunc
	interval  time.Duration
	batchSize int
	enabled   bool
}

// NewNotificationDispatcher создаёт диспетчер уведомлений. Неположительные
// значения заменяются умолчаниями, batchSize зажимается сверху сотней.
func NewNotificationDispatcher(logger zerolog.Logger, repo NotificationDispatcherRepo, send domain.SendFunc, pollSeconds, batchSize int, enabled bool) *NotificationDispatcher {
	if pollSeconds <= 0 {
		pollSeconds = defaultNotificationPollSeconds
	}
	if batchSize <= 0 {
		batchSize = defaultNotificationBatch
	}
	if batchSize > maxNotificationBatch {
		batchSize = maxNotificationBatch
	}
	return &NotificationDispatcher{
		log:       logger,
		repo:      repo,
		send:      send,
		interval:  time.Duration(pollSeconds) * time.Second,
		batchSize: batchSize,
		enabled:   enabled,
	}
}

// Interval возвращает действующий период опроса.
func (d *NotificationDispatcher) Interval() time.Duration {
	return d.interval
}

// BatchSize возвращает действующий размер батча.
func (d *NotificationDispatcher) BatchSize() int {
	return d.batchSize
}

// Run крутит цикл до отмены контекста.
func (d *NotificationDispatcher) Run(ctx context.Context) {
	if !d.enabled {
		d.log.Info().Msg("notification dispatcher: выключен конфигурацией")
		return
	}
	d.log.Info().Dur("interval", d.interval).Int("batch", d.batchSize).Msg("notification dispatcher: запущен")
	for {
		d.runCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.interval):
		}
	}
}

func (d *NotificationDispatcher) runCycle(ctx context.Context) {
	res, err := d.repo.DispatchPending(ctx, d.send, d.batchSize)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		d.log.Error().Err(err).Msg("notification dispatcher: цикл не удался")
		return
	}
	if res.Claimed == 0 {
		return
	}
	metrics.NotificationsDispatchedTotal.WithLabelValues("sent").Add(float64(res.Sent))
	metrics.NotificationsDispatchedTotal.WithLabelValues("failed").Add(float64(res.Failed))
	d.log.Info().
		Int("claimed", res.Claimed).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Msg("notification dispatcher: батч обработан")
}
