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

const sessionColumns = `id, user_id, state, created_at, closed_at, error`

func scanSession(row pgx.Row) (domain.CaptureSession, error) {
	var (
		s        domain.CaptureSession
		closedAt sql.NullTime
		errText  sql.NullString
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.State, &s.CreatedAt, &closedAt, &errText); err != nil {
		return domain.CaptureSession{}, err
	}
	if closedAt.Valid {
		ts := closedAt.Time
		s.ClosedAt = &ts
	}
	if errText.Valid {
		v := errText.String
		s.Error = &v
	}
	return s, nil
}

// Create вставляет новую открытую сессию. Частичный уникальный индекс по
// (user_id) WHERE state='open' превращает вторую открытую сессию в
// ErrUniquenessConflict.
func (p *Postgres) Create(ctx context.Context, userID int64) (domain.CaptureSession, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO capture.capture_session (id, user_id, state)
VALUES ($1, $2, 'open')
RETURNING `+sessionColumns, uuid.New(), userID)
	s, err := scanSession(row)
	metrics.ObserveNetworkRequest("postgres", "capture_session_insert", "capture_session", start, err)
	if err != nil {
		return domain.CaptureSession{}, translateError("create session", err)
	}
	return s, nil
}

// GetOrCreateOpen возвращает открытую сессию пользователя, создавая её при
// необходимости. Гонка шире одного повтора считается фатальной.
func (p *Postgres) GetOrCreateOpen(ctx context.Context, userID int64) (domain.CaptureSession, error) {
	open, err := p.GetOpen(ctx, userID)
	if err != nil {
		return domain.CaptureSession{}, err
	}
	if open != nil {
		return *open, nil
	}

	ctx2, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	row := p.pool.QueryRow(ctx2, `
INSERT INTO capture.capture_session (id, user_id, state)
VALUES ($1, $2, 'open')
ON CONFLICT (user_id) WHERE state = 'open' DO NOTHING
RETURNING `+sessionColumns, uuid.New(), userID)
	s, err := scanSession(row)
	metrics.ObserveNetworkRequest("postgres", "capture_session_insert_on_conflict", "capture_session", start, err)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.CaptureSession{}, translateError("get or create open session", err)
	}

	// Конфликт: открытую сессию успел вставить кто-то другой.
	open, err = p.GetOpen(ctx, userID)
	if err != nil {
		return domain.CaptureSession{}, err
	}
	if open == nil {
		return domain.CaptureSession{}, fmt.Errorf("get or create open session: user %d: %w", userID, domain.ErrInternal)
	}
	return *open, nil
}

// GetOpen возвращает самую свежую открытую сессию пользователя или nil.
func (p *Postgres) GetOpen(ctx context.Context, userID int64) (*domain.CaptureSession, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+sessionColumns+`
FROM capture.capture_session
WHERE user_id = $1 AND state = 'open'
ORDER BY created_at DESC
LIMIT 1`, userID)
	s, err := scanSession(row)
	metrics.ObserveNetworkRequest("postgres", "capture_session_get_open", "capture_session", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError("get open session", err)
	}
	return &s, nil
}

// CloseOpen атомарно переводит открытую сессию пользователя в closed.
// Блокировка строки внутри одного оператора исключает рваное состояние;
// closed_at штампует триггер переходов.
func (p *Postgres) CloseOpen(ctx context.Context, userID int64) (*domain.CaptureSession, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
UPDATE capture.capture_session
SET state = 'closed'
WHERE id = (
    SELECT id FROM capture.capture_session
    WHERE user_id = $1 AND state = 'open'
    ORDER BY created_at DESC
    LIMIT 1
    FOR UPDATE
)
RETURNING `+sessionColumns, userID)
	s, err := scanSession(row)
	metrics.ObserveNetworkRequest("postgres", "capture_session_close_open", "capture_session", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError("close open session", err)
	}
	return &s, nil
}

// ClaimNextClosedForProcessing забирает одну закрытую сессию с изображениями
// и переводит её в processing. SKIP LOCKED исключает выдачу одной сессии двум
// воркерам; сессии без изображений не забираются никогда.
func (p *Postgres) ClaimNextClosedForProcessing(ctx context.Context) (*domain.CaptureSession, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
UPDATE capture.capture_session
SET state = 'processing'
WHERE id = (
    SELECT s.id FROM capture.capture_session s
    WHERE s.state = 'closed'
      AND EXISTS (SELECT 1 FROM capture.capture_image i WHERE i.session_id = s.id)
    ORDER BY s.closed_at ASC, s.created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING `+sessionColumns)
	s, err := scanSession(row)
	metrics.ObserveNetworkRequest("postgres", "capture_session_claim", "capture_session", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError("claim session", err)
	}
	return &s, nil
}

// GetByID возвращает сессию по идентификатору.
func (p *Postgres) GetByID(ctx context.Context, id uuid.UUID) (domain.CaptureSession, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT `+sessionColumns+`
FROM capture.capture_session
WHERE id = $1`, id)
	s, err := scanSession(row)
	metrics.ObserveNetworkRequest("postgres", "capture_session_get_by_id", "capture_session", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CaptureSession{}, fmt.Errorf("get session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CaptureSession{}, translateError("get session", err)
	}
	return s, nil
}

// UpdateState выполняет прямой переход состояния. Недопустимые переходы
// отклоняет триггер хранилища.
func (p *Postgres) UpdateState(ctx context.Context, id uuid.UUID, state domain.SessionState, reason *string) (domain.CaptureSession, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var reasonArg sql.NullString
	if reason != nil {
		reasonArg = sql.NullString{String: *reason, Valid: true}
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
UPDATE capture.capture_session
SET state = $2, error = $3
WHERE id = $1
RETURNING `+sessionColumns, id, state, reasonArg)
	s, err := scanSession(row)
	metrics.ObserveNetworkRequest("postgres", "capture_session_update_state", "capture_session", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CaptureSession{}, fmt.Errorf("update session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CaptureSession{}, translateError("update session state", err)
	}
	return s, nil
}
