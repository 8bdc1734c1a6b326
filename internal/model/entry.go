package model

import (
	"strings"
	"time"
)

// Bounds on OptionsConfig.MaxMessageSize. Both are exclusive.
const (
	MinMaxMessageSize     = 2048
	MaxMaxMessageSize     = 30000
	DefaultMaxMessageSize = 4096
)

// OptionsConfig is the mutable monitoring overlay of an entry.
type OptionsConfig struct {
	Folder         string `json:"folder"`
	Search         string `json:"search"`
	MaxMessageSize int    `json:"max_message_size"`
}

// DefaultOptions returns the options an entry is created with.
func DefaultOptions(folder, search string) OptionsConfig {
	return OptionsConfig{
		Folder:         folder,
		Search:         search,
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

// Normalized trims folder and search and fills defaults for empty values.
func (o OptionsConfig) Normalized() OptionsConfig {
	o.Folder = strings.TrimSpace(o.Folder)
	o.Search = strings.TrimSpace(o.Search)
	if o.Folder == "" {
		o.Folder = DefaultFolder
	}
	if o.Search == "" {
		o.Search = DefaultSearch
	}
	return o
}

// MaxMessageSizeValid reports whether size lies strictly between the
// configured bounds.
func MaxMessageSizeValid(size int) bool {
	return size > MinMaxMessageSize && size < MaxMaxMessageSize
}

// EntryState tracks whether an entry's stored credentials still work.
type EntryState string

const (
	EntryStateLoaded      EntryState = "loaded"
	EntryStateNeedsReauth EntryState = "needs_reauth"
)

// Entry is a persisted account configuration. The password is never
// held here; PasswordRef points at the secret store.
type Entry struct {
	// ID is the unique identifier for this entry.
	ID string `json:"id"`

	// Title is the user-facing label, the username by default.
	Title string `json:"title"`

	Username      string        `json:"username"`
	Server        string        `json:"server"`
	Port          int           `json:"port"`
	Charset       string        `json:"charset"`
	SSLCipherList SSLCipherList `json:"ssl_cipher_list"`

	// PasswordRef is a secret store reference such as "keyring:<key>".
	PasswordRef string `json:"password_ref"`

	// Options holds folder, search and max message size.
	Options OptionsConfig `json:"options"`

	State     EntryState `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// LastCheckedAt and LastError record the latest health check.
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// Identity returns the account identity of the entry.
func (e Entry) Identity() Identity {
	return Identity{Server: e.Server, Port: e.Port, Username: e.Username}
}

// Connection rebuilds the full connection configuration of the entry
// with the given password. Folder and search come from the options.
func (e Entry) Connection(password string) ConnectionConfig {
	return ConnectionConfig{
		Username:      e.Username,
		Password:      password,
		Server:        e.Server,
		Port:          e.Port,
		Charset:       e.Charset,
		Folder:        e.Options.Folder,
		Search:        e.Options.Search,
		SSLCipherList: e.SSLCipherList,
	}
}

// NewEntry builds an entry from a validated connection. Folder and
// search seed the default options.
func NewEntry(id string, cfg ConnectionConfig, now time.Time) Entry {
	return Entry{
		ID:            id,
		Title:         cfg.Username,
		Username:      cfg.Username,
		Server:        cfg.Server,
		Port:          cfg.Port,
		Charset:       cfg.Charset,
		SSLCipherList: cfg.SSLCipherList,
		Options:       DefaultOptions(cfg.Folder, cfg.Search),
		State:         EntryStateLoaded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
