package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"

	"github.com/nhle/mailflow/internal/model"
)

func TestKeyringRoundTrip(t *testing.T) {
	k := NewKeyring(keyring.NewArrayKeyring(nil))

	if err := k.Set("imap-e1", "secret"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := k.Get("imap-e1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "secret" {
		t.Errorf("Get = %q, want %q", got, "secret")
	}

	if err := k.Delete("imap-e1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := k.Get("imap-e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := k.Delete("imap-e1"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestRef(t *testing.T) {
	ref := Ref(EntryKey("e1"))
	if ref != "keyring:imap-e1" {
		t.Fatalf("Ref = %q", ref)
	}

	key, err := ParseRef(ref)
	if err != nil || key != "imap-e1" {
		t.Errorf("ParseRef(%q) = %q, %v", ref, key, err)
	}

	for _, bad := range []string{"", "keyring:", "env:PASSWORD", "imap-e1"} {
		if _, err := ParseRef(bad); err == nil {
			t.Errorf("ParseRef(%q) succeeded, want error", bad)
		}
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(model.KeyringConfig{Backends: []string{"floppy"}})
	if err == nil {
		t.Error("Open with unknown backend succeeded, want error")
	}
}
