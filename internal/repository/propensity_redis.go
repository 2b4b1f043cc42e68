package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const leadPropensityKeyPrefix = "lead_propensity:"

// redisPropensitySink accumulates lead propensity in Redis. The counter is a
// plain float key; downstream scoring reads it directly.
type redisPropensitySink struct {
	client *redis.Client
	logger *zap.Logger
}

var _ PropensitySink = (*redisPropensitySink)(nil)

// NewRedisPropensitySink creates the Redis-backed propensity sink.
func NewRedisPropensitySink(client *redis.Client, logger *zap.Logger) PropensitySink {
	return &redisPropensitySink{client: client, logger: logger.Named("PropensitySink")}
}

// Increment atomically adds delta to the lead's counter.
func (s *redisPropensitySink) Increment(ctx context.Context, leadID string, delta float64) (float64, error) {
	if leadID == "" {
		return 0, fmt.Errorf("lead id is empty")
	}

	key := leadPropensityKeyPrefix + leadID
	value, err := s.client.IncrByFloat(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment propensity for lead %s: %w", leadID, err)
	}

	s.logger.Debug("Lead propensity incremented",
		zap.String("lead_id", leadID),
		zap.Float64("delta", delta),
		zap.Float64("value", value))
	return value, nil
}
