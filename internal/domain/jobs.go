package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OCRJob описывает задачу распознавания забранной сессии.
type OCRJob struct {
	SessionID  uuid.UUID `json:"session_id"`
	UserID     int64     `json:"user_id"`
	ImageCount int       `json:"image_count"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

// OCRQueue публикует задачи распознавания для нижестоящего обработчика.
// Очередь — оптимизация задержки: истина о claim живёт в хранилище.
type OCRQueue interface {
	Publish(ctx context.Context, job OCRJob) error
}
