package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"tg-capture-bot/internal/adapters/bot"
	"tg-capture-bot/internal/adapters/repo"
	"tg-capture-bot/internal/domain"
	"tg-capture-bot/internal/infra/config"
	"tg-capture-bot/internal/infra/db"
	applog "tg-capture-bot/internal/infra/log"
	"tg-capture-bot/internal/infra/metrics"
	"tg-capture-bot/internal/infra/queue"
	"tg-capture-bot/internal/usecase/dispatch"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	if cfg.DatabaseURL == "" {
		logger.Info().Msg("dispatcher: DATABASE_URL не задан, ядро отключено")
		return
	}
	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatcher: нет подключения к БД")
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("dispatcher: миграции не применились")
	}

	repoAdapter := repo.NewPostgres(pool)

	var ocrQueue domain.OCRQueue
	if cfg.RabbitURL != "" {
		rq, err := queue.NewRabbitOCRQueue(cfg.RabbitURL, cfg.Queues.OCR)
		if err != nil {
			logger.Fatal().Err(err).Msg("dispatcher: не удалось инициализировать очередь RabbitMQ")
		}
		defer rq.Close()
		ocrQueue = rq
	}

	sessionDispatcher := dispatch.NewSessionDispatcher(
		logger.With().Str("component", "session_dispatcher").Logger(),
		repoAdapter, repoAdapter, ocrQueue,
		cfg.Dispatchers.Sessions.PollSeconds,
		cfg.Dispatchers.Sessions.Enabled,
	)

	var send domain.SendFunc
	notificationsEnabled := cfg.Dispatchers.Notifications.Enabled
	if cfg.Telegram.Token == "" {
		logger.Warn().Msg("dispatcher: TG_BOT_TOKEN не задан, доставка уведомлений отключена")
		notificationsEnabled = false
	} else {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("dispatcher: не удалось создать бота")
		}
		send = bot.NewNotificationSender(botAPI)
	}
	notificationDispatcher := dispatch.NewNotificationDispatcher(
		logger.With().Str("component", "notification_dispatcher").Logger(),
		repoAdapter, send,
		cfg.Dispatchers.Notifications.PollSeconds,
		cfg.Dispatchers.Notifications.BatchSize,
		notificationsEnabled,
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sessionDispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		notificationDispatcher.Run(ctx)
	}()
	wg.Wait()
	logger.Info().Msg("dispatcher: остановлен")
}
