// Package credential keeps account passwords out of the entry database.
// Entries reference secrets as "keyring:<key>".
package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"

	"github.com/nhle/mailflow/internal/model"
)

const (
	serviceName = "mailflow"
	refPrefix   = "keyring:"
)

// ErrNotFound is returned when no secret is stored under a key.
var ErrNotFound = errors.New("credential not found")

// Secrets stores and retrieves account passwords.
type Secrets interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Ref returns the entry reference for key.
func Ref(key string) string {
	return refPrefix + key
}

// ParseRef returns the key behind an entry reference.
func ParseRef(ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, refPrefix)
	if !ok || key == "" {
		return "", fmt.Errorf("invalid credential reference %q", ref)
	}
	return key, nil
}

// EntryKey is the key under which an entry's password is stored.
func EntryKey(entryID string) string {
	return "imap-" + entryID
}

var backendNames = map[string]keyring.BackendType{
	"keychain":       keyring.KeychainBackend,
	"secret-service": keyring.SecretServiceBackend,
	"wincred":        keyring.WinCredBackend,
	"pass":           keyring.PassBackend,
	"kwallet":        keyring.KWalletBackend,
	"file":           keyring.FileBackend,
}

// Keyring is a Secrets implementation over 99designs/keyring.
type Keyring struct {
	ring keyring.Keyring
}

// NewKeyring wraps an already opened keyring.
func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

// Open opens the system keyring restricted to the configured backends.
func Open(cfg model.KeyringConfig) (*Keyring, error) {
	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
	if len(cfg.Backends) > 0 {
		backends = backends[:0]
		for _, name := range cfg.Backends {
			b, ok := backendNames[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("unknown keyring backend %q", name)
			}
			backends = append(backends, b)
		}
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          backends,
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("mailflow-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyring(ring), nil
}

// Get retrieves a credential value by key.
func (k *Keyring) Get(key string) (string, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (k *Keyring) Set(key, value string) error {
	err := k.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key. A missing key is not an error.
func (k *Keyring) Delete(key string) error {
	err := k.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
