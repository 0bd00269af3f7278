package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	// DatabaseURL — DSN Postgres. Без него ядро отключено: репозитории не
	// создаются, диспетчеры не запускаются.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	Blob struct {
		Endpoint  string `envconfig:"BLOB_ENDPOINT"`
		AccessKey string `envconfig:"BLOB_ACCESS_KEY"`
		SecretKey string `envconfig:"BLOB_SECRET_KEY"`
		Bucket    string `envconfig:"BLOB_BUCKET" default:"capture"`
		UseSSL    bool   `envconfig:"BLOB_USE_SSL" default:"false"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		OCR string `envconfig:"OCR_QUEUE_KEY" default:"ocr_jobs"`
	} `envconfig:""`

	Dispatchers struct {
		Sessions struct {
			Enabled     bool `envconfig:"SESSIONS_DISPATCHER_ENABLED" default:"true"`
			PollSeconds int  `envconfig:"SESSIONS_POLL_SECONDS" default:"5"`
		} `envconfig:""`
		Notifications struct {
			Enabled     bool `envconfig:"NOTIFICATIONS_DISPATCHER_ENABLED" default:"true"`
			PollSeconds int  `envconfig:"NOTIFICATIONS_POLL_SECONDS" default:"3"`
			BatchSize   int  `envconfig:"NOTIFICATIONS_BATCH_SIZE" default:"20"`
		} `envconfig:""`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
