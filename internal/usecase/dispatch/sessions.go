package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-capture-bot/internal/domain"
	"tg-capture-bot/internal/infra/metrics"
)

const defaultSessionPollSeconds = 5

// SessionClaimer — узкий срез SessionRepo, нужный диспетчеру.
type SessionClaimer interface {
	ClaimNextClosedForProcessing(ctx context.Context) (*domain.CaptureSession, error)
}

// ImageCounter считает изображения сессии для публикуемой задачи.
type ImageCounter interface {
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// SessionDispatcher периодически забирает закрытые сессии на обработку и
// публикует задачи распознавания. Истина о claim живёт в хранилище; очередь —
// только ускорение доставки.
type SessionDispatcher struct {
	log      zerolog.Logger
	sessions SessionClaimer
	images   ImageCounter
	queue    domain.OCRQueue
	interval time.Duration
	enabled  bool
}

// NewSessionDispatcher создаёт диспетчер сессий. Неположительный pollSeconds
// заменяется умолчанием; queue может быть nil.
func NewSessionDispatcher(logger zerolog.Logger, sessions SessionClaimer, images ImageCounter, queue domain.OCRQueue, pollSeconds int, enabled bool) *SessionDispatcher {
	if pollSeconds <= 0 {
		pollSeconds = defaultSessionPollSeconds
	}
	return &SessionDispatcher{
		log:      logger,
		sessions: sessions,
		images:   images,
		queue:    queue,
		interval: time.Duration(pollSeconds) * time.Second,
		enabled:  enabled,
	}
}

// Interval возвращает действующий период опроса.
func (d *SessionDispatcher) Interval() time.Duration {
	return d.interval
}

// Run крутит цикл до отмены контекста. Ошибки цикла логируются и
// проглатываются; отмена прерывает работу немедленно.
func (d *SessionDispatcher) Run(ctx context.Context) {
	if !d.enabled {
		d.log.Info().Msg("session dispatcher: выключен конфигурацией")
		return
	}
	d.log.Info().Dur("interval", d.interval).Msg("session dispatcher: запущен")
	for {
		d.runCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.interval):
		}
	}
}

func (d *SessionDispatcher) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	session, err := d.sessions.ClaimNextClosedForProcessing(cycleCtx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		d.log.Error().Err(err).Msg("session dispatcher: claim не удался")
		return
	}
	if session == nil {
		return
	}

	metrics.SessionsClaimedTotal.Inc()
	d.log.Info().
		Str("session_id", session.ID.String()).
		Str("state", string(session.State)).
		Int64("user_id", session.UserID).
		Msg("session dispatcher: сессия забрана на обработку")

	if d.queue == nil {
		return
	}
	count, err := d.images.CountBySession(cycleCtx, session.ID)
	if err != nil {
		d.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("session dispatcher: не удалось посчитать изображения")
		count = 0
	}
	job := domain.OCRJob{
		SessionID:  session.ID,
		UserID:     session.UserID,
		ImageCount: count,
		ClaimedAt:  time.Now().UTC(),
	}
	if err := d.queue.Publish(cycleCtx, job); err != nil {
		// Claim остаётся в силе: нижестоящий воркер опрашивает и сам.
		d.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("session dispatcher: публикация задачи не удалась")
	}
}
