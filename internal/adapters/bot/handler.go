package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-capture-bot/internal/domain"
	"tg-capture-bot/internal/infra/metrics"
	"tg-capture-bot/internal/usecase/capture"
)

const (
	maxDownloadBytes = 20 << 20
	replayGuardTTL   = 10 * time.Minute
)

// Handler обслуживает вебхук бота. Обработчик без состояния: группировка
// загрузок целиком живёт в хранилище.
type Handler struct {
	bot     *tgbotapi.BotAPI
	log     zerolog.Logger
	capture *capture.Service
	cache   domain.Cache
	client  *http.Client
}

// NewHandler создаёт обработчик.
func NewHandler(botAPI *tgbotapi.BotAPI, logger zerolog.Logger, captureUC *capture.Service, cache domain.Cache) *Handler {
	return &Handler{
		bot:     botAPI,
		log:     logger,
		capture: captureUC,
		cache:   cache,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// HandleUpdate обрабатывает входящий апдейт. Ошибки никогда не возвращаются
// транспорту: пользователь получает ответ, вебхук — 200.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	h.handleMessage(ctx, upd.Message)
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if len(msg.Photo) > 0 || msg.Document != nil {
		h.handleUpload(ctx, msg)
		return
	}

	cmd, ok := ParseCommand(msg.Text)
	if !ok {
		return
	}
	switch cmd {
	case "/start", "/help":
		h.reply(msg.Chat.ID, helpMessage)
	case "/start_session":
		h.handleStartSession(ctx, msg.Chat.ID, msg.From.ID)
	case "/close", "/done":
		h.handleClose(ctx, msg.Chat.ID, msg.From.ID)
	default:
		h.reply(msg.Chat.ID, "Unknown command. Use /help")
	}
}

const helpMessage = `Send screenshots of your daily schedule and I will queue them for recognition.

/start_session — open a capture session for several screenshots
/close or /done — close the session and hand it off
A single screenshot without an open session is stored and closed right away.`

// ParseCommand нормализует команду: регистр не важен, суффикс @bot
// отбрасывается. Возвращает ok=false для обычного текста.
func ParseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.Fields(text)[0]
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), true
}

func (h *Handler) handleStartSession(ctx context.Context, chatID, userID int64) {
	res, err := h.capture.StartSession(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("bot: не удалось открыть сессию")
		h.reply(chatID, genericFailureReply)
		return
	}
	if res.Created {
		h.reply(chatID, fmt.Sprintf("Capture session %s opened. Send your schedule screenshots, then /close.", res.Session.ID))
		return
	}
	h.reply(chatID, fmt.Sprintf("You already have an open session %s. Send screenshots or /close it.", res.Session.ID))
}

func (h *Handler) handleClose(ctx context.Context, chatID, userID int64) {
	session, count, err := h.capture.CloseSession(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("bot: не удалось закрыть сессию")
		h.reply(chatID, genericFailureReply)
		return
	}
	if session == nil {
		h.reply(chatID, "No open session. Send a screenshot or /start_session first.")
		return
	}
	h.reply(chatID, closedReply(session.ID.String(), count))
}

func closedReply(sessionID string, count int) string {
	return fmt.Sprintf("Session %s closed: %d image(s) queued for recognition.", sessionID, count)
}

func (h *Handler) handleUpload(ctx context.Context, msg *tgbotapi.Message) {
	fileID, contentType, ok := extractUploadFile(msg)
	if !ok {
		h.reply(msg.Chat.ID, "Please send schedule screenshots as photos or image files.")
		return
	}

	userID := msg.From.ID
	messageID := int64(msg.MessageID)
	guardKey := fmt.Sprintf("upload:%d:%d", userID, messageID)
	ran := false
	err := h.cache.Once(ctx, guardKey, replayGuardTTL, func() error {
		ran = true
		return h.storeUpload(ctx, msg.Chat.ID, userID, messageID, fileID, contentType)
	})
	if err != nil {
		if !ran {
			// Сбой самого замка: storeUpload не вызывался и не ответил.
			h.reply(msg.Chat.ID, genericFailureReply)
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("bot: загрузка не сохранена")
	}
}

func (h *Handler) storeUpload(ctx context.Context, chatID, userID, messageID int64, fileID, contentType string) error {
	data, err := h.downloadFile(ctx, fileID)
	if err != nil {
		h.reply(chatID, genericFailureReply)
		return err
	}

	res, err := h.capture.StoreUpload(ctx, userID, data, contentType, &messageID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIllegalState):
			h.reply(chatID, "The session is no longer open. Start a new one with /start_session.")
			return nil
		case errors.Is(err, domain.ErrUniquenessConflict):
			// Тот же скриншот уже сохранён: идемпотентный повтор.
			h.reply(chatID, "This screenshot is already stored.")
			return nil
		default:
			h.reply(chatID, genericFailureReply)
			return err
		}
	}

	h.reply(chatID, storedReply(res))
	return nil
}

func storedReply(res capture.UploadResult) string {
	reply := fmt.Sprintf("Stored image %d in session %s.", res.Image.Sequence, res.Session.ID)
	if res.Mode == capture.UploadModeSingle {
		reply += " Session closed (single-upload mode)."
	}
	return reply
}

const genericFailureReply = "Something went wrong. Please try again."

// extractUploadFile выбирает файл загрузки: для фото — самый крупный вариант,
// для документов — только изображения.
func extractUploadFile(msg *tgbotapi.Message) (fileID, contentType string, ok bool) {
	if len(msg.Photo) > 0 {
		best := msg.Photo[len(msg.Photo)-1]
		return best.FileID, "image/jpeg", true
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID, msg.Document.MimeType, true
	}
	return "", "", false
}

func (h *Handler) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := h.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("получение ссылки на файл: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := h.client.Do(req)
	metrics.ObserveNetworkRequest("telegram", "download_file", "file", start, err)
	if err != nil {
		return nil, fmt.Errorf("скачивание файла: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("скачивание файла: статус %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("чтение файла: %w", err)
	}
	return data, nil
}

func (h *Handler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		metrics.BotSendErrors.Inc()
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("bot: не удалось отправить ответ")
	}
}
