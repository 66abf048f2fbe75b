// FilePath: internal/repository/rediscache/rediscache.telemetry.go
package rediscache

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/redis/go-redis/v9"
)

// TelemetryRepo keeps the latest telemetry blob per sensor. A zero TTL keeps
// entries until they are overwritten or deleted.
type TelemetryRepo struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTelemetryRepository(client *redis.Client, ttl time.Duration) *TelemetryRepo {
	return &TelemetryRepo{client: client, ttl: ttl}
}

func (r *TelemetryRepo) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.NewNotFoundError("telemetry not found", err)
		}
		return nil, errors.NewCacheError("failed to get telemetry", err)
	}
	return value, nil
}

func (r *TelemetryRepo) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return errors.NewCacheError("failed to set telemetry", err)
	}
	return nil
}

// Delete removes the key; deleting an absent key is not an error
func (r *TelemetryRepo) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return errors.NewCacheError("failed to delete telemetry", err)
	}
	return nil
}

func (r *TelemetryRepo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.NewCacheError("failed to ping redis", err)
	}
	return nil
}
