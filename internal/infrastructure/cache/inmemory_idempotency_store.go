package cache

import (
	"context"
	"sync"
	"time"

	"github.com/clinic/backend/internal/domain/shared"
)

const defaultPurgeInterval = 5 * time.Minute

// InMemoryIdempotencyStore keeps dedup keys in process memory. It backs
// webhook and handler dedup when Redis is not configured, so keys do not
// survive a restart and are not shared between engine instances.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	expiry  map[string]time.Time
	now     func() time.Time
	every   time.Duration
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// InMemoryOption configures an InMemoryIdempotencyStore
type InMemoryOption func(*InMemoryIdempotencyStore)

// WithClock replaces time.Now for expiry checks
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemoryIdempotencyStore) {
		s.now = now
	}
}

// WithPurgeInterval sets how often expired keys are dropped. Zero disables
// the background purge; expired keys are still ignored on lookup.
func WithPurgeInterval(d time.Duration) InMemoryOption {
	return func(s *InMemoryIdempotencyStore) {
		s.every = d
	}
}

// NewInMemoryIdempotencyStore creates the store and starts its purge loop
func NewInMemoryIdempotencyStore(opts ...InMemoryOption) *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		expiry:  make(map[string]time.Time),
		now:     time.Now,
		every:   defaultPurgeInterval,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.every > 0 {
		go s.purgeLoop()
	} else {
		close(s.stopped)
	}
	return s
}

// MarkProcessed claims key for ttl. It returns false while an unexpired
// claim exists.
func (s *InMemoryIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.expiry[key]; ok && now.Before(until) {
		return false, nil
	}
	s.expiry[key] = now.Add(ttl)
	return true, nil
}

func (s *InMemoryIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.expiry[key]
	return ok && s.now().Before(until), nil
}

// Release drops a claim so a failed delivery can be retried
func (s *InMemoryIdempotencyStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expiry, key)
	return nil
}

// Close stops the purge loop. It is safe to call more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.stopped
	})
	return nil
}

func (s *InMemoryIdempotencyStore) purgeLoop() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.purgeExpired()
		}
	}
}

// purgeExpired drops expired claims and reports how many were removed
func (s *InMemoryIdempotencyStore) purgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, until := range s.expiry {
		if !now.Before(until) {
			delete(s.expiry, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of claims held, expired ones included until purged
func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
