package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tg-capture-bot/internal/domain"
	"tg-capture-bot/internal/infra/metrics"
)

const imageColumns = `id, session_id, sequence, object_key, external_message_id, created_at`

func scanImage(row pgx.Row) (domain.CaptureImage, error) {
	var (
		img   domain.CaptureImage
		msgID sql.NullInt64
	)
	if err := row.Scan(&img.ID, &img.SessionID, &img.Sequence, &img.ObjectKey, &msgID, &img.CreatedAt); err != nil {
		return domain.CaptureImage{}, err
	}
	if msgID.Valid {
		v := msgID.Int64
		img.ExternalMessageID = &v
	}
	return img, nil
}

// AppendNext выделяет следующий номер под блокировкой строки сессии и
// вставляет изображение. Блокировка сериализует всех писателей одной сессии,
// поэтому MAX+1 не выдаёт дубликатов и не оставляет дыр; уникальный индекс
// (session_id, sequence) превращает любое нарушение в жёсткую ошибку.
func (p *Postgres) AppendNext(ctx context.Context, sessionID uuid.UUID, objectKey string, externalMessageID *int64) (domain.CaptureImage, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "capture_image", start, err)
	if err != nil {
		return domain.CaptureImage{}, translateError("append image", err)
	}
	defer tx.Rollback(ctx)

	var state domain.SessionState
	start = time.Now()
	err = tx.QueryRow(ctx, `
SELECT state FROM capture.capture_session WHERE id = $1 FOR UPDATE`, sessionID).Scan(&state)
	metrics.ObserveNetworkRequest("postgres", "capture_session_lock", "capture_session", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CaptureImage{}, fmt.Errorf("append image: session %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CaptureImage{}, translateError("append image", err)
	}
	if state != domain.SessionOpen {
		return domain.CaptureImage{}, fmt.Errorf("append image: session %s in state %s: %w", sessionID, state, domain.ErrIllegalState)
	}

	var next int
	start = time.Now()
	err = tx.QueryRow(ctx, `
SELECT COALESCE(MAX(sequence), 0) + 1 FROM capture.capture_image WHERE session_id = $1`, sessionID).Scan(&next)
	metrics.ObserveNetworkRequest("postgres", "capture_image_next_sequence", "capture_image", start, err)
	if err != nil {
		return domain.CaptureImage{}, translateError("append image", err)
	}

	var msgArg sql.NullInt64
	if externalMessageID != nil {
		msgArg = sql.NullInt64{Int64: *externalMessageID, Valid: true}
	}

	start = time.Now()
	row := tx.QueryRow(ctx, `
INSERT INTO capture.capture_image (id, session_id, sequence, object_key, external_message_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+imageColumns, uuid.New(), sessionID, next, objectKey, msgArg)
	img, err := scanImage(row)
	metrics.ObserveNetworkRequest("postgres", "capture_image_insert", "capture_image", start, err)
	if err != nil {
		return domain.CaptureImage{}, translateError("append image", err)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "capture_image", start, err)
	if err != nil {
		return domain.CaptureImage{}, translateError("append image", err)
	}
	metrics.ImagesStoredTotal.Inc()
	return img, nil
}

// CountBySession считает изображения сессии.
func (p *Postgres) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM capture.capture_image WHERE session_id = $1`, sessionID).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "capture_image_count", "capture_image", start, err)
	if err != nil {
		return 0, translateError("count images", err)
	}
	return count, nil
}

// ListBySession возвращает изображения в порядке возрастания sequence.
func (p *Postgres) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.CaptureImage, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+imageColumns+`
FROM capture.capture_image
WHERE session_id = $1
ORDER BY sequence ASC`, sessionID)
	metrics.ObserveNetworkRequest("postgres", "capture_image_list", "capture_image", start, err)
	if err != nil {
		return nil, translateError("list images", err)
	}
	defer rows.Close()

	var images []domain.CaptureImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, translateError("list images", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("list images", err)
	}
	return images, nil
}
