package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionRepo управляет сессиями захвата.
type SessionRepo interface {
	// Create вставляет новую открытую сессию. Если у пользователя уже есть
	// открытая сессия, возвращает ErrUniquenessConflict.
	Create(ctx context.Context, userID int64) (CaptureSession, error)
	// GetOrCreateOpen возвращает открытую сессию пользователя, создавая её
	// при необходимости. Гарантированно возвращает валидную открытую строку
	// либо ErrInternal.
	GetOrCreateOpen(ctx context.Context, userID int64) (CaptureSession, error)
	// GetOpen возвращает самую свежую открытую сессию или nil.
	GetOpen(ctx context.Context, userID int64) (*CaptureSession, error)
	// CloseOpen атомарно закрывает открытую сессию пользователя. Если
	// открытой сессии нет, возвращает nil без ошибки.
	CloseOpen(ctx context.Context, userID int64) (*CaptureSession, error)
	// ClaimNextClosedForProcessing забирает одну закрытую сессию с хотя бы
	// одним изображением и переводит её в processing. Конкурентные вызовы
	// никогда не возвращают одну и ту же сессию. Если claim нечего — nil.
	ClaimNextClosedForProcessing(ctx context.Context) (*CaptureSession, error)
	// GetByID возвращает сессию по идентификатору.
	GetByID(ctx context.Context, id uuid.UUID) (CaptureSession, error)
	// UpdateState выполняет прямой переход состояния. Недопустимый переход
	// отклоняется триггером хранилища и возвращается как ErrIllegalTransition.
	UpdateState(ctx context.Context, id uuid.UUID, state SessionState, reason *string) (CaptureSession, error)
}

// ImageRepo управляет изображениями сессий.
type ImageRepo interface {
	// AppendNext выделяет следующий номер в сессии под блокировкой строки
	// сессии и вставляет изображение. Вставка допустима только в открытую
	// сессию (ErrIllegalState иначе); повторная загрузка того же объекта
	// возвращает ErrUniquenessConflict.
	AppendNext(ctx context.Context, sessionID uuid.UUID, objectKey string, externalMessageID *int64) (CaptureImage, error)
	// CountBySession считает изображения сессии.
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
	// ListBySession возвращает изображения в порядке возрастания sequence.
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]CaptureImage, error)
}

// SendFunc отправляет одно уведомление через внешний транспорт.
type SendFunc func(ctx context.Context, n ScheduleNotification) error

// DispatchResult — итог одного цикла разбора очереди уведомлений.
// Sent + Failed = Claimed, кроме случая отмены.
type DispatchResult struct {
	Claimed int
	Sent    int
	Failed  int
}

// NotificationRepo управляет очередью исходящих уведомлений.
type NotificationRepo interface {
	// Enqueue вставляет уведомление со статусом pending.
	Enqueue(ctx context.Context, n ScheduleNotification) (ScheduleNotification, error)
	// DispatchPending забирает до batchSize ожидающих строк (пропуская уже
	// заблокированные), отправляет каждую через send и фиксирует sent/failed
	// одним коммитом. Отмена прерывает цикл без записи статусов.
	DispatchPending(ctx context.Context, send SendFunc, batchSize int) (DispatchResult, error)
}

// ScheduleVersionRepo хранит версии распознанного расписания. Ограничения
// (монотонная версия, уникальность сессии) объявлены в схеме; ядро этим
// хранилищем не пользуется, оно отдано нижестоящему обработчику.
type ScheduleVersionRepo interface {
	Insert(ctx context.Context, v DayScheduleVersion) (DayScheduleVersion, error)
	LatestForDate(ctx context.Context, userID int64, date time.Time) (*DayScheduleVersion, error)
}

// BlobStore сохраняет содержимое по контент-адресу и возвращает ключ объекта.
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

// Cache используется для простых TTL-замков.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
