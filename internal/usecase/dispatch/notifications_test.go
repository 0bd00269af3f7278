package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-capture-bot/internal/domain"
)

type fakeNotificationRepo struct {
	calls  int
	result domain.DispatchResult
	err    error
	batch  int
	cancel context.CancelFunc
}

func (f *fakeNotificationRepo) DispatchPending(ctx context.Context, send domain.SendFunc, batchSize int) (domain.DispatchResult, error) {
	f.calls++
	f.batch = batchSize
	if f.cancel != nil {
		f.cancel()
	}
	return f.result, f.err
}

func noopSend(ctx context.Context, n domain.ScheduleNotification) error { return nil }

func TestNotificationDispatcherDisabled(t *testing.T) {
	repo := &fakeNotificationRepo{}
	d := NewNotificationDispatcher(zerolog.Nop(), repo, noopSend, 3, 20, false)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled dispatcher must return immediately")
	}
	if repo.calls != 0 {
		t.Fatalf("disabled dispatcher ran %d cycles", repo.calls)
	}
}

func TestNotificationDispatcherStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := &fakeNotificationRepo{cancel: cancel, err: context.Canceled}
	d := NewNotificationDispatcher(zerolog.Nop(), repo, noopSend, 3, 20, true)

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher must stop after cancellation")
	}
	if repo.calls != 1 {
		t.Fatalf("expected a single cycle, got %d", repo.calls)
	}
}

func TestNotificationDispatcherPassesBatchSize(t *testing.T) {
	repo := &fakeNotificationRepo{result: domain.DispatchResult{Claimed: 2, Sent: 1, Failed: 1}}
	d := NewNotificationDispatcher(zerolog.Nop(), repo, noopSend, 3, 7, true)

	d.runCycle(context.Background())
	if repo.batch != 7 {
		t.Fatalf("expected batch 7, got %d", repo.batch)
	}
}

func TestNotificationDispatcherSwallowsErrors(t *testing.T) {
	repo := &fakeNotificationRepo{err: errors.New("store down")}
	d := NewNotificationDispatcher(zerolog.Nop(), repo, noopSend, 3, 20, true)

	d.runCycle(context.Background())
	d.runCycle(context.Background())
	if repo.calls != 2 {
		t.Fatalf("errors must not stop the loop, got %d calls", repo.calls)
	}
}

func TestNotificationDispatcherClamps(t *testing.T) {
	d := NewNotificationDispatcher(zerolog.Nop(), &fakeNotificationRepo{}, noopSend, 0, 0, true)
	if d.Interval() != 3*time.Second {
		t.Fatalf("expected default interval 3s, got %s", d.Interval())
	}
	if d.BatchSize() != 20 {
		t.Fatalf("expected default batch 20, got %d", d.BatchSize())
	}

	d = NewNotificationDispatcher(zerolog.Nop(), &fakeNotificationRepo{}, noopSend, 1, 500, true)
	if d.Interval() != time.Second {
		t.Fatalf("expected 1s, got %s", d.Interval())
	}
	if d.BatchSize() != 100 {
		t.Fatalf("expected batch clamped to 100, got %d", d.BatchSize())
	}
}
