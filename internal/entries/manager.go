// Package entries owns configured accounts on the host side: it hands
// flows a snapshot of stored entries and persists the effects they
// return.
package entries

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gologme/log"

	"github.com/nhle/mailflow/internal/credential"
	"github.com/nhle/mailflow/internal/flow"
	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/store"
	"github.com/nhle/mailflow/internal/validator"
)

// Manager coordinates entry rows and their keyring secrets.
type Manager struct {
	store   store.Store
	secrets credential.Secrets
	log     *log.Logger
	now     func() time.Time
}

// NewManager creates a manager. A nil logger discards output.
func NewManager(st store.Store, secrets credential.Secrets, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Manager{
		store:   st,
		secrets: secrets,
		log:     logger,
		now:     time.Now,
	}
}

// Snapshot returns every stored entry for uniqueness checks.
func (m *Manager) Snapshot(ctx context.Context) (flow.Snapshot, error) {
	list, err := m.store.GetEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return flow.Snapshot(list), nil
}

// Entry returns the entry with the given ID.
func (m *Manager) Entry(ctx context.Context, id string) (model.Entry, error) {
	e, err := m.store.GetEntryByID(ctx, id)
	if err != nil {
		return model.Entry{}, err
	}
	return *e, nil
}

// Password resolves the stored secret of e.
func (m *Manager) Password(e model.Entry) (string, error) {
	key, err := credential.ParseRef(e.PasswordRef)
	if err != nil {
		return "", fmt.Errorf("entry %s: %w", e.ID, err)
	}
	return m.secrets.Get(key)
}

// Apply persists a flow effect and returns the resulting entry. Nothing
// is left half-written: a failed row write rolls the secret back.
func (m *Manager) Apply(ctx context.Context, effect flow.Effect) (model.Entry, error) {
	switch effect.Kind {
	case flow.EffectNone:
		return effect.Entry, nil
	case flow.EffectCreate:
		return m.create(ctx, effect.Entry, effect.Password)
	case flow.EffectUpdatePassword:
		return m.updatePassword(ctx, effect.Entry, effect.Password)
	case flow.EffectReplaceOptions:
		return m.replaceOptions(ctx, effect.Entry, effect.Options)
	default:
		return model.Entry{}, fmt.Errorf("unknown effect %v", effect.Kind)
	}
}

func (m *Manager) create(ctx context.Context, e model.Entry, password string) (model.Entry, error) {
	key := credential.EntryKey(e.ID)
	if err := m.secrets.Set(key, password); err != nil {
		return model.Entry{}, fmt.Errorf("storing password of %s: %w", e.Identity(), err)
	}
	e.PasswordRef = credential.Ref(key)

	if err := m.store.CreateEntry(ctx, e); err != nil {
		if delErr := m.secrets.Delete(key); delErr != nil {
			m.log.Warnf("rolling back password of %s: %v", e.Identity(), delErr)
		}
		return model.Entry{}, err
	}

	m.log.Infof("created entry %s for %s", e.ID, e.Identity())
	return e, nil
}

func (m *Manager) updatePassword(ctx context.Context, e model.Entry, password string) (model.Entry, error) {
	key, err := credential.ParseRef(e.PasswordRef)
	if err != nil {
		return model.Entry{}, fmt.Errorf("entry %s: %w", e.ID, err)
	}

	previous, prevErr := m.secrets.Get(key)
	if err := m.secrets.Set(key, password); err != nil {
		return model.Entry{}, fmt.Errorf("updating password of %s: %w", e.Identity(), err)
	}

	now := m.now().UTC()
	err = m.store.RecordCheck(ctx, e.ID, store.CheckResult{
		State:     model.EntryStateLoaded,
		CheckedAt: now,
	})
	if err != nil {
		if prevErr == nil {
			if setErr := m.secrets.Set(key, previous); setErr != nil {
				m.log.Warnf("restoring password of %s: %v", e.Identity(), setErr)
			}
		} else if delErr := m.secrets.Delete(key); delErr != nil {
			m.log.Warnf("removing new password of %s: %v", e.Identity(), delErr)
		}
		return model.Entry{}, err
	}

	e.State = model.EntryStateLoaded
	e.LastCheckedAt = &now
	e.LastError = ""
	m.log.Infof("reauthenticated entry %s", e.ID)
	return e, nil
}

func (m *Manager) replaceOptions(
	ctx context.Context, e model.Entry, opts model.OptionsConfig,
) (model.Entry, error) {
	if err := m.store.ReplaceOptions(ctx, e.ID, opts); err != nil {
		return model.Entry{}, err
	}
	e.Options = opts
	m.log.Infof("updated options of entry %s", e.ID)
	return e, nil
}

// RecordCheck stores the outcome of a credential check of e. A rejected
// login moves the entry to needs_reauth; a success moves it back to
// loaded. Connectivity and configuration failures keep the current state.
func (m *Manager) RecordCheck(ctx context.Context, e model.Entry, checkErr error) (model.EntryState, error) {
	state := e.State
	switch {
	case checkErr == nil:
		state = model.EntryStateLoaded
	case validator.IsAuth(checkErr):
		state = model.EntryStateNeedsReauth
	}

	res := store.CheckResult{State: state, CheckedAt: m.now().UTC()}
	if checkErr != nil {
		res.Error = string(validator.KeyOf(checkErr))
	}
	if err := m.store.RecordCheck(ctx, e.ID, res); err != nil {
		return e.State, err
	}
	if state != e.State {
		m.log.Infof("entry %s is now %s", e.ID, state)
	}
	return state, nil
}

// Remove deletes an entry and its secret.
func (m *Manager) Remove(ctx context.Context, id string) error {
	e, err := m.store.GetEntryByID(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.DeleteEntry(ctx, id); err != nil {
		return err
	}

	key, err := credential.ParseRef(e.PasswordRef)
	if err != nil {
		m.log.Warnf("entry %s had no usable password reference: %v", id, err)
		return nil
	}
	if err := m.secrets.Delete(key); err != nil && !errors.Is(err, credential.ErrNotFound) {
		return fmt.Errorf("removing password of entry %s: %w", id, err)
	}
	m.log.Infof("removed entry %s", id)
	return nil
}
