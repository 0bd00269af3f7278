package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"tg-capture-bot/internal/infra/metrics"
)

// Store — контент-адресуемый загрузчик скриншотов в S3-совместимое
// хранилище. Ключ объекта выводится из содержимого, поэтому повторная
// загрузка тех же байтов даёт тот же ключ.
type Store struct {
	client *minio.Client
	bucket string
	log    zerolog.Logger
}

// Config описывает подключение к хранилищу объектов.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New создаёт загрузчик.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("создание клиента: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket, log: logger}, nil
}

// EnsureBucket создаёт бакет, если его ещё нет.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("проверка бакета: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("создание бакета: %w", err)
	}
	return nil
}

// ObjectKey выводит ключ объекта из содержимого и типа.
func ObjectKey(data []byte, contentType string) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("capture/%x%s", sum, extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

// Put сохраняет содержимое и возвращает ключ объекта.
func (s *Store) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	key := ObjectKey(data, contentType)
	start := time.Now()
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	metrics.ObserveNetworkRequest("minio", "put_object", s.bucket, start, err)
	if err != nil {
		return "", fmt.Errorf("загрузка объекта: %w", err)
	}
	return key, nil
}
