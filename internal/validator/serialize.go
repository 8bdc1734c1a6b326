package validator

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/nhle/mailflow/internal/model"
)

// Serialized wraps a Validator so that attempts for the same account
// identity never overlap. Attempts for different accounts run in
// parallel.
type Serialized struct {
	next Validator

	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sem     *semaphore.Weighted
	waiters int
}

// NewSerialized wraps next.
func NewSerialized(next Validator) *Serialized {
	return &Serialized{
		next:  next,
		locks: make(map[string]*accountLock),
	}
}

// Validate waits for any in-flight attempt on the same account, then
// delegates. Waiting honours ctx; a cancelled wait is reported as
// cannot_connect.
func (s *Serialized) Validate(
	ctx context.Context, cfg model.ConnectionConfig,
) (*Session, error) {
	key := cfg.Identity().Key()
	lock := s.acquire(key)
	defer s.release(key, lock)

	if err := lock.sem.Acquire(ctx, 1); err != nil {
		return nil, newError(KeyCannotConnect, err)
	}
	defer lock.sem.Release(1)

	return s.next.Validate(ctx, cfg)
}

func (s *Serialized) acquire(key string) *accountLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		lock = &accountLock{sem: semaphore.NewWeighted(1)}
		s.locks[key] = lock
	}
	lock.waiters++
	return lock
}

func (s *Serialized) release(key string, lock *accountLock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock.waiters--
	if lock.waiters == 0 {
		delete(s.locks, key)
	}
}
