package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/habitkit/habitkit/pkg/datasync"
)

// RedisStore keeps the aggregate as one JSON value per user. Entries never
// expire; the aggregate is the durable copy, not a cache.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a Redis-backed cloud store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	if client == nil {
		panic("datastore: redis client is required")
	}
	return &RedisStore{client: client, keyPrefix: "habits:aggregate:"}
}

func (s *RedisStore) key(userID uuid.UUID) string {
	return s.keyPrefix + userID.String()
}

func (s *RedisStore) Upload(ctx context.Context, userID uuid.UUID, agg datasync.Aggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate: %w", err)
	}
	if err := s.client.Set(ctx, s.key(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return nil
}

func (s *RedisStore) Download(ctx context.Context, userID uuid.UUID) (datasync.Aggregate, bool, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return datasync.Aggregate{}, false, nil
		}
		return datasync.Aggregate{}, false, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	var agg datasync.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return datasync.Aggregate{}, false, fmt.Errorf("failed to parse aggregate: %w", err)
	}
	return agg, true, nil
}
