package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/pkg/logger"
)

// Client caches derived views per learner: the ordered review queue and the
// latest bottleneck analysis. Everything here is a memoized copy of what the
// core can recompute from the store, so a flush is always safe.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetQueue(ctx context.Context, learnerID string, queue interface{}, ttl time.Duration) error {
	data, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	err = c.client.Set(ctx, queueKey(learnerID), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set queue cache: %w", err)
	}

	logger.Debug("Queue cached", zap.String("learner_id", learnerID), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetQueue(ctx context.Context, learnerID string, queue interface{}) (bool, error) {
	data, err := c.client.Get(ctx, queueKey(learnerID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get queue cache: %w", err)
	}

	err = json.Unmarshal(data, queue)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal queue: %w", err)
	}

	logger.Debug("Queue cache hit", zap.String("learner_id", learnerID))
	return true, nil
}

// InvalidateQueue drops the learner's cached queue. Called after every
// evaluation, since the affected item's score has changed.
func (c *Client) InvalidateQueue(ctx context.Context, learnerID string) error {
	err := c.client.Del(ctx, queueKey(learnerID)).Err()
	if err != nil {
		return fmt.Errorf("failed to invalidate queue cache: %w", err)
	}
	return nil
}

func (c *Client) SetBottleneck(ctx context.Context, learnerID string, analysis interface{}, ttl time.Duration) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	err = c.client.Set(ctx, bottleneckKey(learnerID), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set bottleneck cache: %w", err)
	}

	logger.Debug("Bottleneck analysis cached", zap.String("learner_id", learnerID))
	return nil
}

func (c *Client) GetBottleneck(ctx context.Context, learnerID string, analysis interface{}) (bool, error) {
	data, err := c.client.Get(ctx, bottleneckKey(learnerID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get bottleneck cache: %w", err)
	}

	err = json.Unmarshal(data, analysis)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}

	return true, nil
}

func (c *Client) InvalidateBottleneck(ctx context.Context, learnerID string) error {
	err := c.client.Del(ctx, bottleneckKey(learnerID)).Err()
	if err != nil {
		return fmt.Errorf("failed to invalidate bottleneck cache: %w", err)
	}
	return nil
}

func queueKey(learnerID string) string {
	return fmt.Sprintf("queue:%s", learnerID)
}

func bottleneckKey(learnerID string) string {
	return fmt.Sprintf("bottleneck:%s", learnerID)
}
