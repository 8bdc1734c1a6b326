// Package health runs one credential check across all configured
// entries and flags the ones whose login is rejected.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gologme/log"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/mailflow/internal/credential"
	"github.com/nhle/mailflow/internal/entries"
	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/validator"
)

// Result is the outcome of checking one entry.
type Result struct {
	Entry model.Entry
	State model.EntryState
	Err   error
}

// NeedsReauth reports whether the entry must go through reauthentication.
func (r Result) NeedsReauth() bool {
	return r.State == model.EntryStateNeedsReauth
}

// Checker validates every stored entry with its stored password.
type Checker struct {
	manager     *entries.Manager
	validator   validator.Validator
	concurrency int
	log         *log.Logger
}

// NewChecker creates a checker running at most concurrency checks at once.
func NewChecker(
	m *entries.Manager, v validator.Validator, concurrency int, logger *log.Logger,
) *Checker {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Checker{
		manager:     m,
		validator:   v,
		concurrency: concurrency,
		log:         logger,
	}
}

// Run checks all entries and records each outcome. Validation failures
// are reported per entry; only storage failures abort the run.
func (c *Checker) Run(ctx context.Context) ([]Result, error) {
	snapshot, err := c.manager.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(snapshot))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, e := range snapshot {
		g.Go(func() error {
			checkErr := c.check(gctx, e)

			state, err := c.manager.RecordCheck(gctx, e, checkErr)
			if err != nil {
				return fmt.Errorf("recording check of %s: %w", e.ID, err)
			}
			results[i] = Result{Entry: e, State: state, Err: checkErr}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Checker) check(ctx context.Context, e model.Entry) error {
	password, err := c.manager.Password(e)
	if errors.Is(err, credential.ErrNotFound) {
		c.log.Warnf("entry %s has no stored password", e.ID)
		return &validator.Error{Key: validator.KeyInvalidAuth, Err: err}
	}
	if err != nil {
		return err
	}

	if _, err := c.validator.Validate(ctx, e.Connection(password)); err != nil {
		c.log.Warnf("entry %s (%s): %v", e.ID, e.Identity(), err)
		return err
	}
	c.log.Debugf("entry %s (%s) ok", e.ID, e.Identity())
	return nil
}
