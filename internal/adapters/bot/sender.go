package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-capture-bot/internal/domain"
	"tg-capture-bot/internal/infra/metrics"
)

// NewNotificationSender строит SendFunc поверх Bot API для диспетчера
// уведомлений.
func NewNotificationSender(api *tgbotapi.BotAPI) domain.SendFunc {
	return func(ctx context.Context, n domain.ScheduleNotification) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.UserID, n.Message)
		if _, err := api.Send(msg); err != nil {
			metrics.BotSendErrors.Inc()
			return err
		}
		return nil
	}
}
