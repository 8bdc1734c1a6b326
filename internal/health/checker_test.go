package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/99designs/keyring"

	"github.com/nhle/mailflow/internal/credential"
	"github.com/nhle/mailflow/internal/entries"
	"github.com/nhle/mailflow/internal/flow"
	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/validator"
	"github.com/nhle/mailflow/tests/testutil"
)

// passwordValidator accepts an attempt only with the expected password
// and reports a rejected login otherwise.
type passwordValidator struct {
	mu        sync.Mutex
	passwords map[string]string
	seen      int
}

func (v *passwordValidator) Validate(
	_ context.Context, cfg model.ConnectionConfig,
) (*validator.Session, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen++
	if v.passwords[cfg.Username] != cfg.Password {
		return nil, &validator.Error{Key: validator.KeyInvalidAuth}
	}
	return &validator.Session{}, nil
}

func seed(t *testing.T, m *entries.Manager, id, username, password string) model.Entry {
	t.Helper()
	cfg := model.ConnectionConfig{
		Username:      username,
		Password:      password,
		Server:        "imap.example.com",
		Port:          993,
		Charset:       "utf-8",
		Folder:        "INBOX",
		Search:        "ALL",
		SSLCipherList: model.SSLCipherPythonDefault,
	}
	e, err := m.Apply(context.Background(), flow.Effect{
		Kind:     flow.EffectCreate,
		Entry:    model.NewEntry(id, cfg, time.Now()),
		Password: password,
	})
	if err != nil {
		t.Fatalf("seeding %s: %v", id, err)
	}
	return e
}

func TestRunFlagsRejectedLogins(t *testing.T) {
	secrets := credential.NewKeyring(keyring.NewArrayKeyring(nil))
	m := entries.NewManager(testutil.NewTestStore(t), secrets, nil)

	seed(t, m, "e1", "a@example.com", "good")
	seed(t, m, "e2", "b@example.com", "stale")
	seed(t, m, "e3", "c@example.com", "good")

	v := &passwordValidator{passwords: map[string]string{
		"a@example.com": "good",
		"b@example.com": "rotated",
		"c@example.com": "good",
	}}

	results, err := NewChecker(m, v, 2, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 || v.seen != 3 {
		t.Fatalf("results = %d, attempts = %d, want 3 and 3", len(results), v.seen)
	}

	for _, r := range results {
		wantReauth := r.Entry.ID == "e2"
		if r.NeedsReauth() != wantReauth {
			t.Errorf("%s: NeedsReauth = %v, want %v", r.Entry.ID, r.NeedsReauth(), wantReauth)
		}
	}

	stored, err := m.Entry(context.Background(), "e2")
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if stored.State != model.EntryStateNeedsReauth || stored.LastError != "invalid_auth" {
		t.Errorf("stored e2 = %q/%q", stored.State, stored.LastError)
	}
}

func TestRunThenReauthRestoresEntry(t *testing.T) {
	secrets := credential.NewKeyring(keyring.NewArrayKeyring(nil))
	m := entries.NewManager(testutil.NewTestStore(t), secrets, nil)
	seed(t, m, "e1", "a@example.com", "old")

	v := &passwordValidator{passwords: map[string]string{"a@example.com": "new"}}
	checker := NewChecker(m, v, 1, nil)

	results, err := checker.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results[0].NeedsReauth() {
		t.Fatal("expected entry to need reauth")
	}

	stale, _ := m.Entry(context.Background(), "e1")
	reauth := flow.NewReauth(v, stale)
	if start := reauth.Start(); start.Next != flow.StateReauthConfirm {
		t.Fatalf("Start().Next = %q", start.Next)
	}
	got := reauth.Submit(context.Background(), flow.ReauthInput{Password: "new"})
	if got.Reason != flow.ReasonReauthSuccessful {
		t.Fatalf("Reason = %q, errors %v", got.Reason, got.Errors)
	}
	if _, err := m.Apply(context.Background(), got.Effect); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	results, err = checker.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if results[0].NeedsReauth() || results[0].Err != nil {
		t.Errorf("after reauth: %+v", results[0])
	}
}

func TestRunMissingSecret(t *testing.T) {
	secrets := credential.NewKeyring(keyring.NewArrayKeyring(nil))
	m := entries.NewManager(testutil.NewTestStore(t), secrets, nil)
	seed(t, m, "e1", "a@example.com", "pw")
	if err := secrets.Delete(credential.EntryKey("e1")); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	v := &passwordValidator{passwords: map[string]string{"a@example.com": "pw"}}
	results, err := NewChecker(m, v, 4, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results[0].NeedsReauth() || v.seen != 0 {
		t.Errorf("result = %+v, attempts = %d", results[0], v.seen)
	}
}

func TestRunEmpty(t *testing.T) {
	m := entries.NewManager(testutil.NewTestStore(t), credential.NewKeyring(keyring.NewArrayKeyring(nil)), nil)
	results, err := NewChecker(m, &passwordValidator{}, 0, nil).Run(context.Background())
	if err != nil || len(results) != 0 {
		t.Errorf("Run = %v, %v", results, err)
	}
}
