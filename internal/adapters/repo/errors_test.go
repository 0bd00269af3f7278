package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tg-capture-bot/internal/domain"
)

func TestTranslateErrorUniqueness(t *testing.T) {
	err := translateError("op", &pgconn.PgError{Code: pgCodeUnique, ConstraintName: "capture_session_user_open_key"})
	if !errors.Is(err, domain.ErrUniquenessConflict) {
		t.Fatalf("expected ErrUniquenessConflict, got %v", err)
	}
}

func TestTranslateErrorGuardCodes(t *testing.T) {
	cases := map[string]error{
		pgCodeIllegalTransition: domain.ErrIllegalTransition,
		pgCodeSessionNotOpen:    domain.ErrIllegalState,
		pgCodeSessionMissing:    domain.ErrNotFound,
		pgCodeCheckViolation:    domain.ErrInternal,
	}
	for code, want := range cases {
		err := translateError("op", &pgconn.PgError{Code: code, Message: "guard fired"})
		if !errors.Is(err, want) {
			t.Fatalf("code %s: expected %v, got %v", code, want, err)
		}
	}
}

func TestTranslateErrorConnectionIsTransient(t *testing.T) {
	err := translateError("op", &pgconn.PgError{Code: "08006", Message: "connection failure"})
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	err = translateError("op", errors.New("read tcp: connection reset by peer"))
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient for a driver error, got %v", err)
	}
}

func TestTranslateErrorCancellationPassesThrough(t *testing.T) {
	if err := translateError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation must pass through, got %v", err)
	}
	if errors.Is(translateError("op", context.Canceled), domain.ErrTransient) {
		t.Fatal("cancellation must not be classified as transient")
	}
}

func TestTranslateErrorNoRows(t *testing.T) {
	if err := translateError("op", pgx.ErrNoRows); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTranslateErrorNil(t *testing.T) {
	if err := translateError("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestGenerateNotificationID(t *testing.T) {
	first, err := generateNotificationID()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := generateNotificationID()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == second {
		t.Fatal("ids must be unique")
	}
	if len(first) != len("ntf_")+32 {
		t.Fatalf("unexpected id length: %s", first)
	}
}
