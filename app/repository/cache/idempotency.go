package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"order-service/app/domain"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyIdemOrderCreate = "idem:order:create:%s"

var ttlIdempotency = 24 * time.Hour

type idempotencyStore struct {
	rdb *redis.Client
}

func NewIdempotencyStore(rdb *redis.Client) domain.IdempotencyStore {
	return &idempotencyStore{rdb}
}

func (s *idempotencyStore) GetOrder(ctx context.Context, key string) (domain.OrderCreateResult, bool, error) {
	var res domain.OrderCreateResult

	val, err := s.rdb.Get(ctx, fmt.Sprintf(keyIdemOrderCreate, key)).Result()
	if err == redis.Nil {
		return res, false, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "[idempotencyStore] GetOrder", "get", err)
		return res, false, err
	}

	if err := json.Unmarshal([]byte(val), &res); err != nil {
		slog.ErrorContext(ctx, "[idempotencyStore] GetOrder", "unmarshal", err)
		return res, false, err
	}

	return res, true, nil
}

func (s *idempotencyStore) SetOrder(ctx context.Context, key string, res domain.OrderCreateResult) error {
	val, err := json.Marshal(res)
	if err != nil {
		slog.ErrorContext(ctx, "[idempotencyStore] SetOrder", "marshal", err)
		return err
	}

	if err := s.rdb.Set(ctx, fmt.Sprintf(keyIdemOrderCreate, key), val, ttlIdempotency).Err(); err != nil {
		slog.ErrorContext(ctx, "[idempotencyStore] SetOrder", "set", err)
		return err
	}

	return nil
}
