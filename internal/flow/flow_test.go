package flow_test

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/validator"
)

// fakeValidator returns err for every attempt and records the configs it
// was given.
type fakeValidator struct {
	err   error
	calls []model.ConnectionConfig
}

func (f *fakeValidator) Validate(
	_ context.Context, cfg model.ConnectionConfig,
) (*validator.Session, error) {
	f.calls = append(f.calls, cfg)
	if f.err != nil {
		return nil, f.err
	}
	return &validator.Session{Messages: 3, Matches: 1}, nil
}

func failWith(key validator.ErrorKey) *fakeValidator {
	return &fakeValidator{err: &validator.Error{Key: key, Err: errors.New("test")}}
}

var allValidatorKeys = []validator.ErrorKey{
	validator.KeyCannotConnect,
	validator.KeyInvalidAuth,
	validator.KeySSLError,
	validator.KeyInvalidCharset,
	validator.KeyInvalidFolder,
	validator.KeyInvalidSearch,
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newEntry(id, server, username, folder, search string) model.Entry {
	return model.Entry{
		ID:            id,
		Title:         username,
		Username:      username,
		Server:        server,
		Port:          993,
		Charset:       "utf-8",
		SSLCipherList: model.SSLCipherPythonDefault,
		PasswordRef:   "keyring:" + id,
		Options: model.OptionsConfig{
			Folder:         folder,
			Search:         search,
			MaxMessageSize: model.DefaultMaxMessageSize,
		},
		State:     model.EntryStateLoaded,
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
}

func validConnection() model.ConnectionConfig {
	return model.ConnectionConfig{
		Username:      "a@example.com",
		Password:      "secret",
		Server:        "imap.example.com",
		Port:          993,
		Charset:       "utf-8",
		Folder:        "INBOX",
		Search:        "UnSeen UnDeleted",
		SSLCipherList: model.SSLCipherPythonDefault,
	}
}
