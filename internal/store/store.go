package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/mailflow/internal/model"
)

var (
	// ErrNotFound is returned when no entry has the requested ID.
	ErrNotFound = errors.New("entry not found")

	// ErrAlreadyExists is returned when an entry with the same
	// (server, port, username) identity is already stored.
	ErrAlreadyExists = errors.New("entry already exists")
)

// CheckResult is the outcome of one credential check of an entry.
type CheckResult struct {
	State     model.EntryState
	CheckedAt time.Time
	Error     string
}

// Store defines the persistence interface for configured entries.
type Store interface {
	CreateEntry(ctx context.Context, entry model.Entry) error
	GetEntries(ctx context.Context) ([]model.Entry, error)
	GetEntryByID(ctx context.Context, id string) (*model.Entry, error)

	// ReplaceOptions overwrites the whole options overlay of an entry.
	ReplaceOptions(ctx context.Context, id string, opts model.OptionsConfig) error

	// RecordCheck stores the state and result of a credential check.
	RecordCheck(ctx context.Context, id string, result CheckResult) error

	DeleteEntry(ctx context.Context, id string) error
}
