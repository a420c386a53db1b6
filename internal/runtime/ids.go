package runtime

import (
	"sync"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
)

// IDGenerator issues experiment IDs with one-second resolution.
// IDs are strictly increasing: a request within the same second as the last
// ID gets the next free second.
type IDGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewIDGenerator creates a generator reading the given clock (time.Now if nil).
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns a fresh experiment ID.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now().Truncate(time.Second)
	if !g.last.IsZero() && !t.After(g.last) {
		t = g.last.Add(time.Second)
	}
	g.last = t
	return domain.FormatExperimentID(t)
}

// Observe advances the generator past an existing ID, such as the newest indexed run.
func (g *IDGenerator) Observe(id string) {
	t, err := domain.ParseExperimentID(id)
	if err != nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.After(g.last) {
		g.last = t
	}
}
