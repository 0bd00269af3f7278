package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tg-capture-bot/internal/domain"
	"tg-capture-bot/internal/infra/metrics"
)

const notificationColumns = `id, user_id, message, status, schedule_date, session_id, notification_type, event_ids, created_at, sent_at`

func scanNotification(row pgx.Row) (domain.ScheduleNotification, error) {
	var (
		n      domain.ScheduleNotification
		date   sql.NullTime
		sessID uuid.NullUUID
		ntype  sql.NullString
		sentAt sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Message, &n.Status, &date, &sessID, &ntype, &n.EventIDs, &n.CreatedAt, &sentAt); err != nil {
		return domain.ScheduleNotification{}, err
	}
	if date.Valid {
		ts := date.Time
		n.ScheduleDate = &ts
	}
	if sessID.Valid {
		id := sessID.UUID
		n.SessionID = &id
	}
	if ntype.Valid {
		n.Type = ntype.String
	}
	if sentAt.Valid {
		ts := sentAt.Time
		n.SentAt = &ts
	}
	return n, nil
}

// Enqueue вставляет уведомление со статусом pending. Пустой идентификатор
// генерируется на месте.
func (p *Postgres) Enqueue(ctx context.Context, n domain.ScheduleNotification) (domain.ScheduleNotification, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if n.ID == "" {
		id, err := generateNotificationID()
		if err != nil {
			return domain.ScheduleNotification{}, err
		}
		n.ID = id
	}

	var dateArg sql.NullTime
	if n.ScheduleDate != nil {
		dateArg = sql.NullTime{Time: *n.ScheduleDate, Valid: true}
	}
	var sessArg uuid.NullUUID
	if n.SessionID != nil {
		sessArg = uuid.NullUUID{UUID: *n.SessionID, Valid: true}
	}
	var typeArg sql.NullString
	if n.Type != "" {
		typeArg = sql.NullString{String: n.Type, Valid: true}
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO capture.schedule_notification (id, user_id, message, status, schedule_date, session_id, notification_type, event_ids)
VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7)
RETURNING `+notificationColumns, n.ID, n.UserID, n.Message, dateArg, sessArg, typeArg, n.EventIDs)
	stored, err := scanNotification(row)
	metrics.ObserveNetworkRequest("postgres", "schedule_notification_insert", "schedule_notification", start, err)
	if err != nil {
		return domain.ScheduleNotification{}, translateError("enqueue notification", err)
	}
	return stored, nil
}

// DispatchPending забирает до batchSize ожидающих уведомлений, пропуская уже
// заблокированные строки, отправляет каждое и фиксирует статусы одним
// коммитом. Доставка at-least-once: падение между send и commit приведёт к
// повтору на следующем тике; статус пишется не более одного раза.
func (p *Postgres) DispatchPending(ctx context.Context, send domain.SendFunc, batchSize int) (domain.DispatchResult, error) {
	var res domain.DispatchResult

	txCtx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(txCtx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "schedule_notification", start, err)
	if err != nil {
		return res, translateError("dispatch notifications", err)
	}
	defer tx.Rollback(txCtx)

	start = time.Now()
	rows, err := tx.Query(txCtx, `
SELECT `+notificationColumns+`
FROM capture.schedule_notification
WHERE status = 'pending'
ORDER BY created_at, id
LIMIT $1
FOR UPDATE SKIP LOCKED`, batchSize)
	metrics.ObserveNetworkRequest("postgres", "schedule_notification_claim", "schedule_notification", start, err)
	if err != nil {
		return res, translateError("dispatch notifications", err)
	}

	var claimed []domain.ScheduleNotification
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			rows.Close()
			return res, translateError("dispatch notifications", scanErr)
		}
		claimed = append(claimed, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, translateError("dispatch notifications", err)
	}
	res.Claimed = len(claimed)

	for _, n := range claimed {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sendErr := send(ctx, n)
		if sendErr != nil && ctx.Err() != nil &&
			(errors.Is(sendErr, context.Canceled) || errors.Is(sendErr, context.DeadlineExceeded)) {
			// Отмена: откат, статусы не пишутся, строки остаются pending.
			return res, sendErr
		}
		if sendErr != nil {
			start = time.Now()
			_, err = tx.Exec(txCtx, `
UPDATE capture.schedule_notification SET status = 'failed' WHERE id = $1`, n.ID)
			metrics.ObserveNetworkRequest("postgres", "schedule_notification_mark_failed", "schedule_notification", start, err)
			if err != nil {
				return res, translateError("dispatch notifications", err)
			}
			res.Failed++
			continue
		}
		start = time.Now()
		_, err = tx.Exec(txCtx, `
UPDATE capture.schedule_notification SET status = 'sent', sent_at = now() WHERE id = $1`, n.ID)
		metrics.ObserveNetworkRequest("postgres", "schedule_notification_mark_sent", "schedule_notification", start, err)
		if err != nil {
			return res, translateError("dispatch notifications", err)
		}
		res.Sent++
	}

	start = time.Now()
	err = tx.Commit(txCtx)
	metrics.ObserveNetworkRequest("postgres", "commit", "schedule_notification", start, err)
	if err != nil {
		return domain.DispatchResult{}, translateError("dispatch notifications", err)
	}
	return res, nil
}
