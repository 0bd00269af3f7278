package repo

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-capture-bot/internal/domain"
)

// Postgres реализует репозитории ядра на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.SessionRepo         = (*Postgres)(nil)
	_ domain.ImageRepo           = (*Postgres)(nil)
	_ domain.NotificationRepo    = (*Postgres)(nil)
	_ domain.ScheduleVersionRepo = (*Postgres)(nil)
)

// Коды Postgres, переводимые в доменную таксономию: стандартные коды
// уникальности и CHECK, а также коды U0001–U0003, которыми сигналят триггеры
// схемы.
const (
	pgCodeUnique            = "23505"
	pgCodeCheckViolation    = "23514"
	pgCodeIllegalTransition = "U0001"
	pgCodeSessionNotOpen    = "U0002"
	pgCodeSessionMissing    = "U0003"
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping проверяет доступность хранилища.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// translateError переводит ошибки драйвера в доменную таксономию. Отмена
// контекста проходит без изменений, чтобы errors.Is у вызывающих работал.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeUnique:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, domain.ErrUniquenessConflict)
		case pgCodeIllegalTransition:
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, domain.ErrIllegalTransition)
		case pgCodeSessionNotOpen:
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, domain.ErrIllegalState)
		case pgCodeSessionMissing:
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, domain.ErrNotFound)
		case pgCodeCheckViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, domain.ErrInternal)
		}
		if strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01" {
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, domain.ErrTransient)
		}
		return fmt.Errorf("%s: %s: %w", op, pgErr.Message, domain.ErrInternal)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransient)
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransient)
}

func generateNotificationID() (string, error) {
	buf := make([]byte, 16)
	if _, err := crand.Read(buf); err != nil {
		return "", err
	}
	return "ntf_" + hex.EncodeToString(buf), nil
}
