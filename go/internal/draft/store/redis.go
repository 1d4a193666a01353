package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty/go/internal/draft/drafterr"
	"github.com/mcdev12/dynasty/go/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	// Key prefixes for Redis
	draftKeyPrefix = "draft:"
	scheduledKey   = "drafts:scheduled"

	maxWatchRetries = 5
)

// Redis stores each draft as a JSON value and keeps pending auto starts in a
// sorted set scored by start time.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed store and checks the connection.
func NewRedis(ctx context.Context, client *redis.Client) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func draftKey(id uuid.UUID) string {
	return draftKeyPrefix + id.String()
}

// CreateDraft implements Store.
func (r *Redis) CreateDraft(ctx context.Context, d *models.Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	ok, err := r.client.SetNX(ctx, draftKey(d.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	if !ok {
		return drafterr.New(drafterr.CodePreconditionFailed, "draft %s already exists", d.ID)
	}
	return r.index(ctx, r.client, d)
}

// LoadDraft implements Store.
func (r *Redis) LoadDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	data, err := r.client.Get(ctx, draftKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, drafterr.New(drafterr.CodeNotFound, "draft %s not found", id)
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	var d models.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &d, nil
}

// SaveDraft implements Store. The version check and the write happen in one
// WATCH transaction so a slower writer can never overwrite a newer snapshot.
func (r *Redis) SaveDraft(ctx context.Context, d *models.Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	key := draftKey(d.ID)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var stored struct {
				Version int64 `json:"version"`
			}
			if err := json.Unmarshal(current, &stored); err != nil {
				return fmt.Errorf("failed to read stored version: %w", err)
			}
			if stored.Version >= d.Version {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return r.index(ctx, pipe, d)
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err = r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (r *Redis) index(ctx context.Context, c redis.Cmdable, d *models.Draft) error {
	if at, ok := autoStartAt(d); ok {
		return c.ZAdd(ctx, scheduledKey, redis.Z{
			Score:  float64(at.UnixMilli()),
			Member: d.ID.String(),
		}).Err()
	}
	return c.ZRem(ctx, scheduledKey, d.ID.String()).Err()
}

// DueScheduled implements Store.
func (r *Redis) DueScheduled(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	members, err := r.client.ZRangeByScore(ctx, scheduledKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled drafts: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("bad scheduled draft id %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NextScheduled implements Store.
func (r *Redis) NextScheduled(ctx context.Context) (time.Time, bool, error) {
	zs, err := r.client.ZRangeWithScores(ctx, scheduledKey, 0, 0).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read next scheduled draft: %w", err)
	}
	if len(zs) == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(int64(zs[0].Score)).UTC(), true, nil
}
