package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tg-capture-bot/internal/domain"
	"tg-capture-bot/internal/infra/metrics"
)

const versionColumns = `id, user_id, schedule_date, version, session_id, payload, created_at`

func scanVersion(row pgx.Row) (domain.DayScheduleVersion, error) {
	var (
		v      domain.DayScheduleVersion
		sessID uuid.NullUUID
	)
	if err := row.Scan(&v.ID, &v.UserID, &v.ScheduleDate, &v.Version, &sessID, &v.Payload, &v.CreatedAt); err != nil {
		return domain.DayScheduleVersion{}, err
	}
	if sessID.Valid {
		id := sessID.UUID
		v.SessionID = &id
	}
	return v, nil
}

// Insert сохраняет очередную версию расписания, выделяя номер атомарно.
// Гонка двух писателей разрешается ограничением уникальности: проигравший
// получает ErrUniquenessConflict; сам метод вставку не повторяет.
func (p *Postgres) Insert(ctx context.Context, v domain.DayScheduleVersion) (domain.DayScheduleVersion, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var sessArg uuid.NullUUID
	if v.SessionID != nil {
		sessArg = uuid.NullUUID{UUID: *v.SessionID, Valid: true}
	}
	var payloadArg []byte
	if len(v.Payload) > 0 {
		payloadArg = v.Payload
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO capture.day_schedule_version (id, user_id, schedule_date, version, session_id, payload)
VALUES ($1, $2, $3,
    (SELECT COALESCE(MAX(version), 0) + 1 FROM capture.day_schedule_version WHERE user_id = $2 AND schedule_date = $3),
    $4, $5)
RETURNING `+versionColumns, uuid.New(), v.UserID, v.ScheduleDate, sessArg, payloadArg)
	stored, err := scanVersion(row)
	metrics.ObserveNetworkRequest("postgres", "day_schedule_version_insert", "day_schedule_version", start, err)
	if err != nil {
		return domain.DayScheduleVersion{}, translateError("insert schedule version", err)
	}
	return stored, nil
}

// LatestForDate возвращает последнюю версию расписания на дату или nil.
func (p *Postgres) LatestForDate(ctx context.Context, userID int64, date time.Time) (*domain.DayScheduleVersion, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+versionColumns+`
FROM capture.day_schedule_version
WHERE user_id = $1 AND schedule_date = $2
ORDER BY version DESC
LIMIT 1`, userID, date)
	v, err := scanVersion(row)
	metrics.ObserveNetworkRequest("postgres", "day_schedule_version_latest", "day_schedule_version", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError("latest schedule version", err)
	}
	return &v, nil
}
