package validator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nhle/mailflow/internal/model"
)

// countingValidator records how many attempts overlap per account.
type countingValidator struct {
	mu      sync.Mutex
	active  map[string]int
	maxSeen map[string]int
	hold    time.Duration
}

func newCountingValidator(hold time.Duration) *countingValidator {
	return &countingValidator{
		active:  make(map[string]int),
		maxSeen: make(map[string]int),
		hold:    hold,
	}
}

func (c *countingValidator) Validate(
	_ context.Context, cfg model.ConnectionConfig,
) (*Session, error) {
	key := cfg.Identity().Key()

	c.mu.Lock()
	c.active[key]++
	if c.active[key] > c.maxSeen[key] {
		c.maxSeen[key] = c.active[key]
	}
	c.mu.Unlock()

	time.Sleep(c.hold)

	c.mu.Lock()
	c.active[key]--
	c.mu.Unlock()
	return &Session{}, nil
}

func TestSerializedSameAccount(t *testing.T) {
	inner := newCountingValidator(5 * time.Millisecond)
	s := NewSerialized(inner)

	cfg := model.ConnectionConfig{Server: "imap.example.com", Port: 993, Username: "a"}
	variant := model.ConnectionConfig{Server: "IMAP.example.com", Port: 993, Username: "A"}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := cfg
			if i%2 == 1 {
				c = variant
			}
			if _, err := s.Validate(context.Background(), c); err != nil {
				t.Errorf("Validate: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := inner.maxSeen[cfg.Identity().Key()]; got != 1 {
		t.Errorf("max overlapping attempts = %d, want 1", got)
	}
	if len(s.locks) != 0 {
		t.Errorf("locks = %d after all attempts, want 0", len(s.locks))
	}
}

// barrierValidator blocks until n attempts are in flight at once.
type barrierValidator struct {
	arrived atomic.Int32
	n       int32
	release chan struct{}
	once    sync.Once
}

func (b *barrierValidator) Validate(
	ctx context.Context, _ model.ConnectionConfig,
) (*Session, error) {
	if b.arrived.Add(1) == b.n {
		b.once.Do(func() { close(b.release) })
	}
	select {
	case <-b.release:
		return &Session{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSerializedDifferentAccountsRunInParallel(t *testing.T) {
	inner := &barrierValidator{n: 2, release: make(chan struct{})}
	s := NewSerialized(inner)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errs := make(chan error, 2)
	for _, user := range []string{"a", "b"} {
		go func() {
			_, err := s.Validate(ctx, model.ConnectionConfig{
				Server: "imap.example.com", Port: 993, Username: user,
			})
			errs <- err
		}()
	}

	for range 2 {
		if err := <-errs; err != nil {
			t.Fatalf("Validate: %v", err)
		}
	}
}

func TestSerializedCancelledWait(t *testing.T) {
	inner := &barrierValidator{n: 99, release: make(chan struct{})}
	s := NewSerialized(inner)
	cfg := model.ConnectionConfig{Server: "imap.example.com", Port: 993, Username: "a"}

	holdCtx, stopHold := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Validate(holdCtx, cfg)
	}()

	for inner.arrived.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Validate(ctx, cfg)
	if KeyOf(err) != KeyCannotConnect {
		t.Errorf("KeyOf(%v) = %q, want %q", err, KeyOf(err), KeyCannotConnect)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}

	stopHold()
	<-done
}
