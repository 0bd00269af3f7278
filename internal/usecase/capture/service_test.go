package capture

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-capture-bot/internal/domain"
)

// fakeStore воспроизводит семантику хранилища в памяти: инвариант одной
// открытой сессии, переходы, вставка только в открытую сессию.
type fakeStore struct {
	sessions       map[uuid.UUID]*domain.CaptureSession
	images         map[uuid.UUID][]domain.CaptureImage
	objectKeys     map[string]bool
	beforeAppend   func()
	getOpenNilOnce bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:   make(map[uuid.UUID]*domain.CaptureSession),
		images:     make(map[uuid.UUID][]domain.CaptureImage),
		objectKeys: make(map[string]bool),
	}
}

func (f *fakeStore) openFor(userID int64) *domain.CaptureSession {
	for _, s := range f.sessions {
		if s.UserID == userID && s.State == domain.SessionOpen {
			return s
		}
	}
	return nil
}

func (f *fakeStore) Create(ctx context.Context, userID int64) (domain.CaptureSession, error) {
	if f.openFor(userID) != nil {
		return domain.CaptureSession{}, domain.ErrUniquenessConflict
	}
	s := domain.CaptureSession{ID: uuid.New(), UserID: userID, State: domain.SessionOpen, CreatedAt: time.Now()}
	f.sessions[s.ID] = &s
	return s, nil
}

func (f *fakeStore) GetOrCreateOpen(ctx context.Context, userID int64) (domain.CaptureSession, error) {
	if open := f.openFor(userID); open != nil {
		return *open, nil
	}
	return f.Create(ctx, userID)
}

func (f *fakeStore) GetOpen(ctx context.Context, userID int64) (*domain.CaptureSession, error) {
	if f.getOpenNilOnce {
		f.getOpenNilOnce = false
		return nil, nil
	}
	if open := f.openFor(userID); open != nil {
		copied := *open
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeStore) CloseOpen(ctx context.Context, userID int64) (*domain.CaptureSession, error) {
	open := f.openFor(userID)
	if open == nil {
		return nil, nil
	}
	now := time.Now()
	open.State = domain.SessionClosed
	open.ClosedAt = &now
	copied := *open
	return &copied, nil
}

func (f *fakeStore) ClaimNextClosedForProcessing(ctx context.Context) (*domain.CaptureSession, error) {
	return nil, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (domain.CaptureSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return domain.CaptureSession{}, domain.ErrNotFound
	}
	return *s, nil
}

func (f *fakeStore) UpdateState(ctx context.Context, id uuid.UUID, state domain.SessionState, reason *string) (domain.CaptureSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return domain.CaptureSession{}, domain.ErrNotFound
	}
	if !s.State.CanTransitionTo(state) {
		return domain.CaptureSession{}, domain.ErrIllegalTransition
	}
	if s.State != state {
		if s.State == domain.SessionOpen && s.ClosedAt == nil {
			now := time.Now()
			s.ClosedAt = &now
		}
		s.State = state
		s.Error = reason
	}
	return *s, nil
}

func (f *fakeStore) AppendNext(ctx context.Context, sessionID uuid.UUID, objectKey string, externalMessageID *int64) (domain.CaptureImage, error) {
	if f.beforeAppend != nil {
		f.beforeAppend()
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return domain.CaptureImage{}, domain.ErrNotFound
	}
	if s.State != domain.SessionOpen {
		return domain.CaptureImage{}, domain.ErrIllegalState
	}
	if f.objectKeys[objectKey] {
		return domain.CaptureImage{}, domain.ErrUniquenessConflict
	}
	f.objectKeys[objectKey] = true
	img := domain.CaptureImage{
		ID:                uuid.New(),
		SessionID:         sessionID,
		Sequence:          len(f.images[sessionID]) + 1,
		ObjectKey:         objectKey,
		ExternalMessageID: externalMessageID,
		CreatedAt:         time.Now(),
	}
	f.images[sessionID] = append(f.images[sessionID], img)
	return img, nil
}

func (f *fakeStore) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	return len(f.images[sessionID]), nil
}

func (f *fakeStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.CaptureImage, error) {
	return f.images[sessionID], nil
}

type fakeBlob struct {
	err error
}

func (f *fakeBlob) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("capture/%s", data), nil
}

func newTestService(store *fakeStore, blobs domain.BlobStore) *Service {
	return NewService(store, store, blobs, zerolog.Nop())
}

func TestExplicitMultiUpload(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBlob{})
	ctx := context.Background()

	started, err := svc.StartSession(ctx, 42)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if !started.Created {
		t.Fatal("expected a freshly created session")
	}

	for i, key := range []string{"k1", "k2", "k3"} {
		msgID := int64(100 + i)
		res, err := svc.StoreUpload(ctx, 42, []byte(key), "image/jpeg", &msgID)
		if err != nil {
			t.Fatalf("upload %s: %v", key, err)
		}
		if res.Mode != UploadModeMulti {
			t.Fatalf("expected multi mode, got %s", res.Mode)
		}
		if res.Session.ID != started.Session.ID {
			t.Fatal("upload landed in a different session")
		}
		if res.Image.Sequence != i+1 {
			t.Fatalf("expected sequence %d, got %d", i+1, res.Image.Sequence)
		}
	}

	closed, count, err := svc.CloseSession(ctx, 42)
	if err != nil {
		t.Fatalf("close session: %v", err)
	}
	if closed == nil || closed.ID != started.Session.ID {
		t.Fatal("closed a different session")
	}
	if closed.State != domain.SessionClosed {
		t.Fatalf("expected closed state, got %s", closed.State)
	}
	if count != 3 {
		t.Fatalf("expected 3 images, got %d", count)
	}
}

func TestImplicitSingleUpload(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBlob{})
	ctx := context.Background()

	msgID := int64(9)
	res, err := svc.StoreUpload(ctx, 7, []byte("k9"), "image/jpeg", &msgID)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Mode != UploadModeSingle {
		t.Fatalf("expected single mode, got %s", res.Mode)
	}
	if res.Image.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", res.Image.Sequence)
	}
	if res.Session.State != domain.SessionClosed {
		t.Fatalf("expected session closed, got %s", res.Session.State)
	}
	if res.Session.ClosedAt == nil {
		t.Fatal("expected closed_at to be stamped")
	}
}

func TestStartSessionReusesOpen(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBlob{})
	ctx := context.Background()

	first, err := svc.StartSession(ctx, 11)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := svc.StartSession(ctx, 11)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if second.Created {
		t.Fatal("second start must reuse the open session")
	}
	if second.Session.ID != first.Session.ID {
		t.Fatal("expected the same session id")
	}
}

func TestStoreUploadCreateRaceFallsBackToMulti(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBlob{})
	ctx := context.Background()

	// Конкурент открыл сессию между GetOpen и Create: первый GetOpen отвечает
	// «нет», Create натыкается на индекс, второй GetOpen видит победителя.
	winner, err := store.Create(ctx, 11)
	if err != nil {
		t.Fatalf("winner create: %v", err)
	}
	store.getOpenNilOnce = true

	res, err := svc.StoreUpload(ctx, 11, []byte("kx"), "image/jpeg", nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Mode != UploadModeMulti {
		t.Fatalf("expected multi mode, got %s", res.Mode)
	}
	if res.Session.ID != winner.ID {
		t.Fatal("upload must land in the winner's session")
	}
}

func TestStoreUploadSessionClosedUnderfoot(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBlob{})
	ctx := context.Background()

	started, err := svc.StartSession(ctx, 5)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	store.beforeAppend = func() {
		store.sessions[started.Session.ID].State = domain.SessionClosed
	}
	_, err = svc.StoreUpload(ctx, 5, []byte("k1"), "image/jpeg", nil)
	if !errors.Is(err, domain.ErrIllegalState) {
		t.Fatalf("expected ErrIllegalState, got %v", err)
	}
	if len(store.images[started.Session.ID]) != 0 {
		t.Fatal("no image may be stored in a closed session")
	}
}

func TestStoreUploadDuplicateObjectKey(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBlob{})
	ctx := context.Background()

	if _, err := svc.StartSession(ctx, 3); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.StoreUpload(ctx, 3, []byte("same"), "image/jpeg", nil); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	_, err := svc.StoreUpload(ctx, 3, []byte("same"), "image/jpeg", nil)
	if !errors.Is(err, domain.ErrUniquenessConflict) {
		t.Fatalf("expected ErrUniquenessConflict, got %v", err)
	}
}

func TestCloseSessionWithoutOpen(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBlob{})

	session, count, err := svc.CloseSession(context.Background(), 404)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if session != nil || count != 0 {
		t.Fatal("expected no session and zero count")
	}
}

func TestStoreUploadBlobFailure(t *testing.T) {
	store := newFakeStore()
	blobErr := errors.New("bucket unavailable")
	svc := newTestService(store, &fakeBlob{err: blobErr})

	_, err := svc.StoreUpload(context.Background(), 8, []byte("k"), "image/jpeg", nil)
	if !errors.Is(err, blobErr) {
		t.Fatalf("expected blob error, got %v", err)
	}
	if len(store.sessions) != 0 {
		t.Fatal("no session may be created when the blob upload fails")
	}
}
