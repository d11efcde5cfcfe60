// db/redis.go
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	logger "github.com/pulsecrm/acl/logging"
	"github.com/pulsecrm/acl/model"
)

var RedisClient *redis.Client

func InitRedis() error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:         viper.GetString("redis.addr"),
		Password:     viper.GetString("redis.password"),
		DB:           viper.GetInt("redis.db"),
		DialTimeout:  viper.GetDuration("redis.dialTimeout"),
		ReadTimeout:  viper.GetDuration("redis.readTimeout"),
		WriteTimeout: viper.GetDuration("redis.writeTimeout"),
		PoolSize:     viper.GetInt("redis.poolSize"),
		PoolTimeout:  viper.GetDuration("redis.poolTimeout"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := RedisClient.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Successfully connected to Redis")
	return nil
}

func CloseRedis() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			logger.Error("Error closing Redis connection", zap.Error(err))
		}
	}
}

func invalidationChannel() string {
	return viper.GetString("acl.invalidationChannel")
}

// PublishInvalidation broadcasts a shard invalidation to every engine
// instance. Called after the store write committed, never before.
func PublishInvalidation(ctx context.Context, event model.InvalidationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation event: %w", err)
	}

	if err := RedisClient.Publish(ctx, invalidationChannel(), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation event: %w", err)
	}

	logger.Debug("Invalidation event published",
		zap.String("tenantID", event.TenantID),
		zap.String("shardID", event.ShardID))
	return nil
}

// SubscribeInvalidations delivers remote invalidation events to the handler
// until ctx is cancelled. Delivery is at-least-once; handlers must be
// idempotent.
func SubscribeInvalidations(ctx context.Context, handler func(context.Context, model.InvalidationEvent)) {
	pubsub := RedisClient.Subscribe(ctx, invalidationChannel())

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event model.InvalidationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Error("Failed to decode invalidation event",
						zap.Error(err),
						zap.String("payload", msg.Payload))
					continue
				}
				handler(ctx, event)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func RateLimit(ctx context.Context, key string, limit int, per time.Duration) (bool, error) {
	pipe := RedisClient.Pipeline()
	now := time.Now().UnixNano()
	key = fmt.Sprintf("ratelimit:%s", key)

	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now-(per.Nanoseconds())))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: now})
	pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, per)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to execute rate limit commands: %w", err)
	}

	count := cmds[2].(*redis.IntCmd).Val()
	allowed := count <= int64(limit)
	logger.Debug("Rate limit check",
		zap.String("key", key),
		zap.Int64("count", count),
		zap.Int("limit", limit),
		zap.Bool("allowed", allowed))
	return allowed, nil
}

// LockShard takes a short-lived distributed lock for one shard so that an
// updateACL batch is not interleaved with another instance's batch.
func LockShard(ctx context.Context, tenantID, shardID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:acl:%s:%s", tenantID, shardID)
	locked, err := RedisClient.SetNX(ctx, key, "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire shard lock: %w", err)
	}
	logger.Debug("Shard lock acquisition attempt",
		zap.String("tenantID", tenantID),
		zap.String("shardID", shardID),
		zap.Bool("locked", locked))
	return locked, nil
}

func UnlockShard(ctx context.Context, tenantID, shardID string) error {
	key := fmt.Sprintf("lock:acl:%s:%s", tenantID, shardID)
	err := RedisClient.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to release shard lock: %w", err)
	}
	logger.Debug("Shard lock released",
		zap.String("tenantID", tenantID),
		zap.String("shardID", shardID))
	return nil
}
