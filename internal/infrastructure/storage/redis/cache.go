package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"emax/internal/application/port"
	"emax/internal/domain/model"
)

// Cache keeps the latest bar per symbol in a hash and fans strategy
// decisions out over a stream plus a pub/sub channel.
type Cache struct {
	rdb            *redis.Client
	prefix         string
	ttl            time.Duration
	keyLatest      string // prefix + ":latest"
	decisionStream string
	decisionChan   string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, decisionStream string) *Cache {
	if strings.TrimSpace(decisionStream) == "" {
		decisionStream = prefix + ":decisions"
	}
	return &Cache{
		rdb:            rdb,
		prefix:         prefix,
		ttl:            ttl,
		keyLatest:      prefix + ":latest",
		decisionStream: decisionStream,
		decisionChan:   decisionStream + ":pub",
	}
}

func (c *Cache) GetLatest(ctx context.Context, symbol string) (*model.Bar, error) {
	raw, err := c.rdb.HGet(ctx, c.keyLatest, symbol).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var bar model.Bar
	if err := json.Unmarshal([]byte(raw), &bar); err != nil {
		return nil, err
	}
	return &bar, nil
}

func (c *Cache) SetLatest(ctx context.Context, bar *model.Bar) error {
	if bar == nil || bar.Close <= 0 {
		return nil
	}
	b, _ := json.Marshal(bar)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, c.keyLatest, bar.Symbol, string(b))
	if c.ttl > 0 {
		pipe.Expire(ctx, c.keyLatest, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Cache) PublishDecision(ctx context.Context, tx *model.Transaction) error {
	// 1) Stream: XADD <stream> * ...
	_, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.decisionStream,
		Values: map[string]any{
			"ts_ms":       tx.Timestamp.UnixMilli(),
			"strategy_id": tx.StrategyID,
			"symbol":      tx.Symbol,
			"action":      string(tx.Action),
			"price":       tx.Price,
			"quantity":    tx.Quantity,
			"status":      tx.Status,
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	b, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	return c.rdb.Publish(ctx, c.decisionChan, string(b)).Err()
}

var (
	_ port.LatestPriceCache  = (*Cache)(nil)
	_ port.DecisionPublisher = (*Cache)(nil)
)
