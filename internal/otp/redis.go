package otp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tablemates/backend/internal/models"
)

// RedisStore keeps challenges in Redis. Keys are retained for twice the
// challenge TTL so a validation attempt shortly after expiry can still be
// reported as "expired" rather than "no active challenge".
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func challengeKey(orderID, userID string) string {
	return fmt.Sprintf("otp:%s:%s", orderID, userID)
}

func (s *RedisStore) Put(ctx context.Context, ch *models.Challenge) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	if err := s.client.Set(ctx, challengeKey(ch.OrderID, ch.UserID), data, 2*s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, orderID, userID string) (*models.Challenge, error) {
	data, err := s.client.Get(ctx, challengeKey(orderID, userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoChallenge
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	ch := &models.Challenge{}
	if err := json.Unmarshal(data, ch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}

	return ch, nil
}

func (s *RedisStore) Delete(ctx context.Context, orderID, userID string) error {
	if err := s.client.Del(ctx, challengeKey(orderID, userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
