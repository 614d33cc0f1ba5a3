// Package cache keeps each machine's current state in Redis so the
// API can answer state reads without touching Postgres. The worker
// refreshes entries as it evaluates; Postgres stays the source of
// truth and a cache miss just falls through to it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Raufnarejo505/Extruder-Predictions-AI--sub001/internal/storage"
)

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(ctx context.Context, addr string, ttl time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{rdb: rdb, ttl: ttl}, nil
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}

type cachedState struct {
	MachineID     string          `json:"machineId"`
	TSUTC         time.Time       `json:"ts"`
	State         string          `json:"state"`
	PreviousState string          `json:"previousState,omitempty"`
	MeanTemp      float64         `json:"meanTemp"`
	Trend         *float64        `json:"trendCPerMin,omitempty"`
	Explanation   json.RawMessage `json:"explanation,omitempty"`
}

func stateKey(machineID string) string {
	return "machine:state:" + machineID
}

// GetCurrentState returns (nil, nil) on a miss.
func (c *Cache) GetCurrentState(ctx context.Context, machineID string) (*storage.StateRecord, error) {
	raw, err := c.rdb.Get(ctx, stateKey(machineID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached state: %w", err)
	}
	var cached cachedState
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, fmt.Errorf("decode cached state: %w", err)
	}
	return &storage.StateRecord{
		MachineID:     cached.MachineID,
		TSUTC:         cached.TSUTC,
		State:         cached.State,
		PreviousState: cached.PreviousState,
		MeanTemp:      cached.MeanTemp,
		Trend:         cached.Trend,
		Explanation:   cached.Explanation,
	}, nil
}

func (c *Cache) SetCurrentState(ctx context.Context, rec storage.StateRecord) error {
	payload, err := json.Marshal(cachedState{
		MachineID:     rec.MachineID,
		TSUTC:         rec.TSUTC,
		State:         rec.State,
		PreviousState: rec.PreviousState,
		MeanTemp:      rec.MeanTemp,
		Trend:         rec.Trend,
		Explanation:   rec.Explanation,
	})
	if err != nil {
		return fmt.Errorf("encode cached state: %w", err)
	}
	if err := c.rdb.Set(ctx, stateKey(rec.MachineID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached state: %w", err)
	}
	return nil
}

// Invalidate drops a machine's entry, e.g. when it is deleted.
func (c *Cache) Invalidate(ctx context.Context, machineID string) error {
	if err := c.rdb.Del(ctx, stateKey(machineID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached state: %w", err)
	}
	return nil
}
