package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionState описывает состояние сессии захвата.
type SessionState string

const (
	// SessionOpen — сессия принимает загрузки.
	SessionOpen SessionState = "open"
	// SessionClosed — сессия закрыта пользователем и ждёт обработки.
	SessionClosed SessionState = "closed"
	// SessionProcessing — сессия забрана диспетчером на распознавание.
	SessionProcessing SessionState = "processing"
	// SessionDone — распознавание завершено.
	SessionDone SessionState = "done"
	// SessionFailed — обработка завершилась ошибкой.
	SessionFailed SessionState = "failed"
)

// CanTransitionTo сообщает, допустим ли переход в состояние next.
// Повторный переход в то же состояние считается no-op и разрешён.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	if s == next {
		return true
	}
	switch s {
	case SessionOpen:
		return next == SessionClosed || next == SessionFailed
	case SessionClosed:
		return next == SessionProcessing || next == SessionFailed
	case SessionProcessing:
		return next == SessionDone || next == SessionFailed
	default:
		return false
	}
}

// Terminal сообщает, что из состояния нет исходящих переходов.
func (s SessionState) Terminal() bool {
	return s == SessionDone || s == SessionFailed
}

// CaptureSession группирует скриншоты одного пользователя.
type CaptureSession struct {
	ID        uuid.UUID
	UserID    int64
	State     SessionState
	CreatedAt time.Time
	ClosedAt  *time.Time
	Error     *string
}

// CaptureImage хранит один загруженный скриншот внутри сессии.
// Запись неизменяема после вставки.
type CaptureImage struct {
	ID                uuid.UUID
	SessionID         uuid.UUID
	Sequence          int
	ObjectKey         string
	ExternalMessageID *int64
	CreatedAt         time.Time
}

// NotificationStatus описывает статус исходящего уведомления.
type NotificationStatus string

const (
	// NotificationPending — уведомление ждёт отправки.
	NotificationPending NotificationStatus = "pending"
	// NotificationSent — уведомление доставлено.
	NotificationSent NotificationStatus = "sent"
	// NotificationFailed — отправка не удалась, повторов не будет.
	NotificationFailed NotificationStatus = "failed"
)

// ScheduleNotification — строка исходящей очереди уведомлений.
// Поля ScheduleDate, SessionID, Type и EventIDs — непрозрачный payload,
// ядро их не интерпретирует.
type ScheduleNotification struct {
	ID           string
	UserID       int64
	Message      string
	Status       NotificationStatus
	ScheduleDate *time.Time
	SessionID    *uuid.UUID
	Type         string
	EventIDs     []int64
	CreatedAt    time.Time
	SentAt       *time.Time
}

// DayScheduleVersion — версия распознанного расписания на день.
// Ядро хранит её как непрозрачные данные для последующих шагов.
type DayScheduleVersion struct {
	ID           uuid.UUID
	UserID       int64
	ScheduleDate time.Time
	Version      int
	SessionID    *uuid.UUID
	Payload      []byte
	CreatedAt    time.Time
}
