package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-capture-bot/internal/adapters/blob"
	"tg-capture-bot/internal/adapters/bot"
	"tg-capture-bot/internal/adapters/repo"
	"tg-capture-bot/internal/domain"
	"tg-capture-bot/internal/infra/cache"
	"tg-capture-bot/internal/infra/config"
	"tg-capture-bot/internal/infra/db"
	httpinfra "tg-capture-bot/internal/infra/http"
	applog "tg-capture-bot/internal/infra/log"
	"tg-capture-bot/internal/infra/metrics"
	capt "tg-capture-bot/internal/usecase/capture"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("gateway: не указан DATABASE_URL")
	}
	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway: нет подключения к БД")
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("gateway: миграции не применились")
	}

	repoAdapter := repo.NewPostgres(pool)

	blobStore, err := blob.New(blob.Config{
		Endpoint:  cfg.Blob.Endpoint,
		AccessKey: cfg.Blob.AccessKey,
		SecretKey: cfg.Blob.SecretKey,
		Bucket:    cfg.Blob.Bucket,
		UseSSL:    cfg.Blob.UseSSL,
	}, logger.With().Str("component", "blob").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway: не удалось создать блоб-хранилище")
	}
	if err := blobStore.EnsureBucket(ctx); err != nil {
		logger.Fatal().Err(err).Msg("gateway: бакет недоступен")
	}

	var replayGuard domain.Cache = cache.Noop{}
	if cfg.RedisAddr != "" {
		replayGuard = cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}

	captureService := capt.NewService(repoAdapter, repoAdapter, blobStore, logger.With().Str("component", "capture").Logger())

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway: не удалось создать бота")
	}

	h := bot.NewHandler(botAPI, logger.With().Str("component", "bot").Logger(), captureService, replayGuard)

	srv := httpinfra.NewServer(logger, pool)
	srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("gateway: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
