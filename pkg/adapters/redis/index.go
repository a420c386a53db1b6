package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/cadence/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Index implements ports.RunIndex using Redis.
// Each run is a JSON value; a sorted set scored by start time orders them.
type Index struct {
	client *backend.Client
	prefix string
}

type Option func(*Index)

// WithPrefix sets the key prefix for runs.
func WithPrefix(prefix string) Option {
	return func(i *Index) {
		i.prefix = prefix
	}
}

// NewClient connects to a Redis server.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// NewIndex creates a run index on an existing client.
func NewIndex(client *backend.Client, opts ...Option) *Index {
	idx := &Index{
		client: client,
		prefix: "cadence:run:",
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (i *Index) key(experimentID string) string {
	return i.prefix + experimentID
}

func (i *Index) indexKey() string {
	return i.prefix + "index"
}

// Record adds or replaces a run.
func (i *Index) Record(ctx context.Context, s domain.RunSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := i.client.TxPipeline()
	pipe.Set(ctx, i.key(s.ExperimentID), data, 0)
	pipe.ZAdd(ctx, i.indexKey(), backend.Z{
		Score:  float64(s.StartedAt.UnixMilli()),
		Member: s.ExperimentID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Get returns one run. Returns domain.ErrNotFound if it is unknown.
func (i *Index) Get(ctx context.Context, experimentID string) (*domain.RunSummary, error) {
	val, err := i.client.Get(ctx, i.key(experimentID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, fmt.Errorf("run %s: %w", experimentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load from redis: %w", err)
	}

	var s domain.RunSummary
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &s, nil
}

// List returns runs newest first.
func (i *Index) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.RunSummary, error) {
	ids, err := i.client.ZRevRangeByScore(ctx, i.indexKey(), &backend.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	out := []domain.RunSummary{}
	for _, id := range ids {
		s, err := i.Get(ctx, id)
		if err != nil {
			// Index entry without a value: skip it rather than fail the listing.
			continue
		}
		if filter.Batch != nil && s.BatchNumber != *filter.Batch {
			continue
		}
		out = append(out, *s)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of indexed runs.
func (i *Index) Count(ctx context.Context) (int, error) {
	n, err := i.client.ZCard(ctx, i.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return int(n), nil
}
