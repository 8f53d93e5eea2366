package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/garnizi/payslip-analyzer-api/internal/models"
)

const snapshotKey = "payslip:snapshot"

type redisRepository struct {
	client *redis.Client
}

// NewRedisRepository returns a SnapshotRepository backed by a single redis
// key. The key has no TTL; the snapshot lives until reset clears it.
func NewRedisRepository(client *redis.Client) SnapshotRepository {
	return &redisRepository{client: client}
}

func (r *redisRepository) Load(ctx context.Context) (*models.Snapshot, error) {
	val, err := r.client.Get(ctx, snapshotKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot from redis: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, err
	}

	return &snap, nil
}

func (r *redisRepository) Save(ctx context.Context, snap *models.Snapshot) error {
	snap.SavedAt = time.Now()
	val, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, snapshotKey, val, 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot to redis: %w", err)
	}
	return nil
}

func (r *redisRepository) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, snapshotKey).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot from redis: %w", err)
	}
	return nil
}
