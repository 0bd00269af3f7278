package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tg-capture-bot/internal/domain"
)

// UploadMode описывает, как загрузка попала в сессию.
type UploadMode string

const (
	// UploadModeMulti — загрузка в явно открытую сессию.
	UploadModeMulti UploadMode = "multi"
	// UploadModeSingle — одиночная загрузка без открытой сессии: сессия
	// создаётся и сразу закрывается тем же обработчиком.
	UploadModeSingle UploadMode = "single"
)

// UploadResult — итог сохранения одной загрузки.
type UploadResult struct {
	Session domain.CaptureSession
	Image   domain.CaptureImage
	Mode    UploadMode
}

// StartResult — итог открытия сессии.
type StartResult struct {
	Session domain.CaptureSession
	Created bool
}

// Service оркестрирует жизненный цикл сессий захвата. Сервис намеренно
// без состояния: вся истина о группировке живёт в хранилище.
type Service struct {
	sessions domain.SessionRepo
	images   domain.ImageRepo
	blobs    domain.BlobStore
	log      zerolog.Logger
}

// NewService создаёт сервис.
func NewService(sessions domain.SessionRepo, images domain.ImageRepo, blobs domain.BlobStore, logger zerolog.Logger) *Service {
	return &Service{sessions: sessions, images: images, blobs: blobs, log: logger}
}

// StartSession открывает сессию пользователя. Если открытая сессия уже есть
// (в том числе вставленная конкурентом), возвращает её с Created=false.
func (s *Service) StartSession(ctx context.Context, userID int64) (StartResult, error) {
	session, err := s.sessions.Create(ctx, userID)
	if err == nil {
		return StartResult{Session: session, Created: true}, nil
	}
	if !errors.Is(err, domain.ErrUniquenessConflict) {
		return StartResult{}, err
	}
	open, err := s.sessions.GetOpen(ctx, userID)
	if err != nil {
		return StartResult{}, err
	}
	if open == nil {
		return StartResult{}, fmt.Errorf("start session: user %d: %w", userID, domain.ErrInternal)
	}
	return StartResult{Session: *open}, nil
}

// CloseSession закрывает открытую сессию и возвращает её вместе с числом
// изображений. Если открытой сессии нет — (nil, 0, nil).
func (s *Service) CloseSession(ctx context.Context, userID int64) (*domain.CaptureSession, int, error) {
	session, err := s.sessions.CloseOpen(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if session == nil {
		return nil, 0, nil
	}
	count, err := s.images.CountBySession(ctx, session.ID)
	if err != nil {
		return nil, 0, err
	}
	return session, count, nil
}

// StoreUpload загружает содержимое в блоб-хранилище и дописывает изображение
// в сессию пользователя. Без открытой сессии срабатывает одиночный режим:
// создать, дописать, закрыть. Если create проигрывает гонку, загрузка уходит
// в сессию победителя.
func (s *Service) StoreUpload(ctx context.Context, userID int64, data []byte, contentType string, externalMessageID *int64) (UploadResult, error) {
	objectKey, err := s.blobs.Put(ctx, data, contentType)
	if err != nil {
		return UploadResult{}, fmt.Errorf("сохранение блоба: %w", err)
	}

	open, err := s.sessions.GetOpen(ctx, userID)
	if err != nil {
		return UploadResult{}, err
	}
	if open != nil {
		img, err := s.images.AppendNext(ctx, open.ID, objectKey, externalMessageID)
		if err != nil {
			return UploadResult{}, err
		}
		return UploadResult{Session: *open, Image: img, Mode: UploadModeMulti}, nil
	}

	session, err := s.sessions.Create(ctx, userID)
	if errors.Is(err, domain.ErrUniquenessConflict) {
		// Конкурент успел открыть сессию: падаем в многокадровый путь.
		open, err = s.sessions.GetOpen(ctx, userID)
		if err != nil {
			return UploadResult{}, err
		}
		if open == nil {
			return UploadResult{}, fmt.Errorf("store upload: user %d: %w", userID, domain.ErrInternal)
		}
		img, err := s.images.AppendNext(ctx, open.ID, objectKey, externalMessageID)
		if err != nil {
			return UploadResult{}, err
		}
		return UploadResult{Session: *open, Image: img, Mode: UploadModeMulti}, nil
	}
	if err != nil {
		return UploadResult{}, err
	}

	img, err := s.images.AppendNext(ctx, session.ID, objectKey, externalMessageID)
	if err != nil {
		return UploadResult{}, err
	}
	closed, err := s.sessions.UpdateState(ctx, session.ID, domain.SessionClosed, nil)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{Session: closed, Image: img, Mode: UploadModeSingle}, nil
}
