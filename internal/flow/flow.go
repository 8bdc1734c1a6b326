// Package flow implements the setup, reauthentication and options flows
// as explicit transition functions. A flow never touches storage: it
// returns an Effect which the caller persists.
package flow

import (
	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/validator"
)

// State is a step of a flow.
type State string

const (
	StateUser          State = "user"
	StateReauthConfirm State = "reauth_confirm"
	StateInit          State = "init"
	StateValidating    State = "validating"
	StateDone          State = "done"
	StateAborted       State = "aborted"
)

// Terminal reports whether no further step follows s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// Reason explains why a flow aborted.
type Reason string

const (
	ReasonAlreadyConfigured Reason = "already_configured"
	ReasonReauthSuccessful  Reason = "reauth_successful"
)

// Message keys raised by the flows themselves, next to the validator's.
const (
	KeyAlreadyConfigured validator.ErrorKey = "already_configured"
	KeyRequired          validator.ErrorKey = "required"
	KeyInvalidPort       validator.ErrorKey = "invalid_port"
	KeyInvalidValue      validator.ErrorKey = "invalid_value"
)

// Form field names. FieldBase carries errors not tied to one field.
const (
	FieldBase           = "base"
	FieldUsername       = "username"
	FieldPassword       = "password"
	FieldServer         = "server"
	FieldPort           = "port"
	FieldCharset        = "charset"
	FieldFolder         = "folder"
	FieldSearch         = "search"
	FieldSSLCipherList  = "ssl_cipher_list"
	FieldMaxMessageSize = "max_message_size"
)

// Errors maps a form field to the message key shown next to it.
type Errors map[string]validator.ErrorKey

// Contains reports whether key is attached to any field.
func (e Errors) Contains(key validator.ErrorKey) bool {
	for _, k := range e {
		if k == key {
			return true
		}
	}
	return false
}

// EffectKind tells the caller what to persist after a transition.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectCreate
	EffectUpdatePassword
	EffectReplaceOptions
)

func (k EffectKind) String() string {
	switch k {
	case EffectCreate:
		return "create"
	case EffectUpdatePassword:
		return "update_password"
	case EffectReplaceOptions:
		return "replace_options"
	default:
		return "none"
	}
}

// Effect is the single storage mutation a successful flow requests.
type Effect struct {
	Kind EffectKind

	// Entry is the new record for EffectCreate and the target record
	// otherwise.
	Entry model.Entry

	// Password is set for EffectCreate and EffectUpdatePassword.
	Password string

	// Options is the full replacement for EffectReplaceOptions.
	Options model.OptionsConfig
}

// Transition is the result of one step. Input holds the values to
// redisplay when Next is a form step.
type Transition[T any] struct {
	Next    State
	Errors  Errors
	Reason  Reason
	Effect  Effect
	Session *validator.Session
	Input   T
}

// fieldErrors places a validator failure on the form field it concerns.
func fieldErrors(err error) Errors {
	key := validator.KeyOf(err)
	switch key {
	case validator.KeyInvalidAuth:
		return Errors{FieldUsername: key, FieldPassword: key}
	case validator.KeyInvalidCharset:
		return Errors{FieldCharset: key}
	case validator.KeyInvalidFolder:
		return Errors{FieldFolder: key}
	case validator.KeyInvalidSearch:
		return Errors{FieldSearch: key}
	default:
		return Errors{FieldBase: key}
	}
}
