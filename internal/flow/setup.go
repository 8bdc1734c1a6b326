package flow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/validator"
)

// Setup collects a new account's connection settings and creates an
// entry once they validate.
type Setup struct {
	validator validator.Validator
	snapshots Snapshots
	newID     func() string
	now       func() time.Time
}

// SetupOption customizes a Setup flow.
type SetupOption func(*Setup)

// WithIDGenerator replaces the uuid generator used for new entries.
func WithIDGenerator(fn func() string) SetupOption {
	return func(s *Setup) { s.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) SetupOption {
	return func(s *Setup) { s.now = fn }
}

// NewSetup creates a setup flow checking uniqueness against the entries
// snapshots loads at each submission.
func NewSetup(v validator.Validator, snapshots Snapshots, opts ...SetupOption) *Setup {
	s := &Setup{
		validator: v,
		snapshots: snapshots,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start returns the initial form with defaults filled in.
func (s *Setup) Start() Transition[model.ConnectionConfig] {
	return Transition[model.ConnectionConfig]{
		Next: StateUser,
		Input: model.ConnectionConfig{
			Port:          model.DefaultPort,
			Charset:       model.DefaultCharset,
			Folder:        model.DefaultFolder,
			Search:        model.DefaultSearch,
			SSLCipherList: model.DefaultSSLCipherList,
		},
	}
}

// Step advances the flow from state with the submitted values.
//
// From StateUser, a duplicate identity aborts with already_configured
// and local field errors return to StateUser; otherwise the flow moves to
// StateValidating. From StateValidating the validator runs: success ends
// in StateDone with an EffectCreate, failure returns to StateUser.
func (s *Setup) Step(
	ctx context.Context, state State, in model.ConnectionConfig,
) Transition[model.ConnectionConfig] {
	in = in.Normalized()

	switch state {
	case StateUser, StateValidating:
	default:
		return s.redisplay(in, Errors{FieldBase: validator.KeyUnknown})
	}

	if errs := checkConnection(in); len(errs) > 0 {
		return s.redisplay(in, errs)
	}
	snapshot, err := loadSnapshot(ctx, s.snapshots)
	if err != nil {
		return s.redisplay(in, Errors{FieldBase: validator.KeyUnknown})
	}
	if snapshot.HasIdentity(in.Identity()) {
		return Transition[model.ConnectionConfig]{
			Next:   StateAborted,
			Reason: ReasonAlreadyConfigured,
			Input:  withoutPassword(in),
		}
	}

	if state == StateUser {
		return Transition[model.ConnectionConfig]{Next: StateValidating, Input: in}
	}

	session, err := s.validator.Validate(ctx, in)
	if err != nil {
		return s.redisplay(in, fieldErrors(err))
	}

	entry := model.NewEntry(s.newID(), in, s.now().UTC())
	return Transition[model.ConnectionConfig]{
		Next:    StateDone,
		Session: session,
		Input:   withoutPassword(in),
		Effect: Effect{
			Kind:     EffectCreate,
			Entry:    entry,
			Password: in.Password,
		},
	}
}

// Submit runs the form step and, when it passes, the validating step.
func (s *Setup) Submit(
	ctx context.Context, in model.ConnectionConfig,
) Transition[model.ConnectionConfig] {
	t := s.Step(ctx, StateUser, in)
	if t.Next != StateValidating {
		return t
	}
	return s.Step(ctx, StateValidating, in)
}

func (s *Setup) redisplay(
	in model.ConnectionConfig, errs Errors,
) Transition[model.ConnectionConfig] {
	return Transition[model.ConnectionConfig]{
		Next:   StateUser,
		Errors: errs,
		Input:  withoutPassword(in),
	}
}

// checkConnection runs the checks that need no network.
func checkConnection(in model.ConnectionConfig) Errors {
	errs := Errors{}
	if in.Username == "" {
		errs[FieldUsername] = KeyRequired
	}
	if in.Password == "" {
		errs[FieldPassword] = KeyRequired
	}
	if in.Server == "" {
		errs[FieldServer] = KeyRequired
	}
	switch {
	case in.Port == 0:
		errs[FieldPort] = KeyRequired
	case in.Port < 1 || in.Port > 65535:
		errs[FieldPort] = KeyInvalidPort
	}
	if !in.SSLCipherList.Valid() {
		errs[FieldSSLCipherList] = KeyInvalidValue
	}
	return errs
}

func withoutPassword(in model.ConnectionConfig) model.ConnectionConfig {
	in.Password = ""
	return in
}
