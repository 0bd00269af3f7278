package main

import (
	"context"

	"tg-capture-bot/internal/infra/config"
	"tg-capture-bot/internal/infra/db"
	applog "tg-capture-bot/internal/infra/log"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("migrate: не указан DATABASE_URL")
	}
	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: нет подключения к БД")
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate: миграции не применились")
	}
	logger.Info().Msg("migrate: схема применена")
}
