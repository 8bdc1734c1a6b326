package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nhle/mailflow/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const entryColumns = `
	id, title, username, server, port, charset, ssl_cipher_list,
	password_ref, folder, search, max_message_size, state,
	created_at, updated_at, last_checked_at, last_error`

// entryRow mirrors the entries table.
type entryRow struct {
	ID             string       `db:"id"`
	Title          string       `db:"title"`
	Username       string       `db:"username"`
	Server         string       `db:"server"`
	Port           int          `db:"port"`
	Charset        string       `db:"charset"`
	SSLCipherList  string       `db:"ssl_cipher_list"`
	PasswordRef    string       `db:"password_ref"`
	Folder         string       `db:"folder"`
	Search         string       `db:"search"`
	MaxMessageSize int          `db:"max_message_size"`
	State          string       `db:"state"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
	LastCheckedAt  sql.NullTime `db:"last_checked_at"`
	LastError      string       `db:"last_error"`
}

func (r entryRow) toModel() model.Entry {
	e := model.Entry{
		ID:            r.ID,
		Title:         r.Title,
		Username:      r.Username,
		Server:        r.Server,
		Port:          r.Port,
		Charset:       r.Charset,
		SSLCipherList: model.SSLCipherList(r.SSLCipherList),
		PasswordRef:   r.PasswordRef,
		Options: model.OptionsConfig{
			Folder:         r.Folder,
			Search:         r.Search,
			MaxMessageSize: r.MaxMessageSize,
		},
		State:     model.EntryState(r.State),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		LastError: r.LastError,
	}
	if r.LastCheckedAt.Valid {
		t := r.LastCheckedAt.Time
		e.LastCheckedAt = &t
	}
	return e
}

// CreateEntry inserts a new entry. A clashing identity yields
// ErrAlreadyExists.
func (s *SQLiteStore) CreateEntry(ctx context.Context, e model.Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry id must not be empty")
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	if e.State == "" {
		e.State = model.EntryStateLoaded
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (
			id, title, username, server, port, charset, ssl_cipher_list,
			password_ref, folder, search, max_message_size, state,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Username, e.Server, e.Port, e.Charset, string(e.SSLCipherList),
		e.PasswordRef, e.Options.Folder, e.Options.Search, e.Options.MaxMessageSize, string(e.State),
		e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("creating entry for %s: %w", e.Identity(), ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("creating entry %s: %w", e.ID, err)
	}
	return nil
}

// GetEntries retrieves all entries ordered by creation time.
func (s *SQLiteStore) GetEntries(ctx context.Context) ([]model.Entry, error) {
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT"+entryColumns+" FROM entries ORDER BY created_at, id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}

	entries := make([]model.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toModel())
	}
	return entries, nil
}

// GetEntryByID retrieves a single entry by its ID.
func (s *SQLiteStore) GetEntryByID(ctx context.Context, id string) (*model.Entry, error) {
	var r entryRow
	err := s.db.GetContext(ctx, &r,
		"SELECT"+entryColumns+" FROM entries WHERE id = ?", id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entry %s: %w", id, err)
	}

	e := r.toModel()
	return &e, nil
}

// ReplaceOptions overwrites folder, search and max message size together.
func (s *SQLiteStore) ReplaceOptions(
	ctx context.Context,
	id string,
	opts model.OptionsConfig,
) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE entries SET
			folder = ?, search = ?, max_message_size = ?, updated_at = ?
		WHERE id = ?`,
		opts.Folder, opts.Search, opts.MaxMessageSize, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("replacing options of entry %s: %w", id, err)
	}
	return requireRow(result, id)
}

// RecordCheck stores the result of a credential check.
func (s *SQLiteStore) RecordCheck(ctx context.Context, id string, res CheckResult) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE entries SET
			state = ?, last_checked_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		string(res.State), res.CheckedAt.UTC(), res.Error, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("recording check of entry %s: %w", id, err)
	}
	return requireRow(result, id)
}

// DeleteEntry removes an entry by ID.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting entry %s: %w", id, err)
	}
	return requireRow(result, id)
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
