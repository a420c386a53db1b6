package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/cadence/pkg/domain"
)

// Index implements ports.RunIndex in memory.
// Safe for concurrent use.
type Index struct {
	data map[string]domain.RunSummary
	mu   sync.RWMutex
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		data: make(map[string]domain.RunSummary),
	}
}

// Record adds or replaces a summary.
func (i *Index) Record(ctx context.Context, summary domain.RunSummary) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.data[summary.ExperimentID] = summary
	return nil
}

// Get returns a copy of one summary.
func (i *Index) Get(ctx context.Context, experimentID string) (*domain.RunSummary, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	s, ok := i.data[experimentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

// List returns summaries newest first.
func (i *Index) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.RunSummary, error) {
	i.mu.RLock()
	out := make([]domain.RunSummary, 0, len(i.data))
	for _, s := range i.data {
		if filter.Batch != nil && s.BatchNumber != *filter.Batch {
			continue
		}
		out = append(out, s)
	}
	i.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].StartedAt.Equal(out[b].StartedAt) {
			return out[a].ExperimentID > out[b].ExperimentID
		}
		return out[a].StartedAt.After(out[b].StartedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
