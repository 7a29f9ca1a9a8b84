package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const usedKeyPrefix = "account:used:"

type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

func NewWithClient(client *redis.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

// * MarkTokenUsed помечает токен как использованный (атомарно через SETNX)
// Возвращает true если токен был использован первый раз
// Возвращает false если токен уже был использован ранее
func (r *RedisRepo) MarkTokenUsed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	const op = "storage.redis.MarkTokenUsed"

	// без TTL ключ жил бы вечно
	if ttl < time.Second {
		ttl = time.Second
	}

	success, err := r.client.SetNX(ctx, usedKeyPrefix+key, "used", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return success, nil
}

// * Close закрывает соединение с базой данных.
func (r *RedisRepo) Close() {
	_ = r.client.Close()
}
