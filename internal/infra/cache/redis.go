package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache реализует domain.Cache через Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Once выполняет функцию, если ключ ещё не задан. При ошибке функции замок
// снимается, чтобы повтор доставки не потерялся.
func (c *RedisCache) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return err
	}
	return nil
}

// Set задаёт значение.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Get возвращает значение.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.client.Get(ctx, key).Bytes()
}

// Noop — заглушка без дедупликации: Once всегда выполняет функцию.
// Используется, когда Redis не настроен.
type Noop struct{}

// Once выполняет функцию безусловно.
func (Noop) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	return fn()
}

// Set ничего не сохраняет.
func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

// Get всегда отвечает промахом.
func (Noop) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, redis.Nil
}
