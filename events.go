package cadence

import (
	"sync"

	"github.com/aretw0/cadence/pkg/domain"
)

// subscribers fans run events out to listeners.
type subscribers struct {
	mu   sync.RWMutex
	subs map[chan domain.RunEvent]struct{}
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[chan domain.RunEvent]struct{})}
}

func (s *subscribers) subscribe() (<-chan domain.RunEvent, func()) {
	ch := make(chan domain.RunEvent, 32)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// broadcast never blocks: slow listeners miss events.
func (s *subscribers) broadcast(e domain.RunEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
