package flow

import (
	"context"

	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/validator"
)

// ReauthInput is the only value the reauthentication form accepts.
type ReauthInput struct {
	Password string
}

// Reauth replaces the password of an entry whose credentials stopped
// working. Every other field is taken from the entry unchanged.
type Reauth struct {
	validator validator.Validator
	entry     model.Entry
}

// NewReauth opens a reauthentication flow for entry.
func NewReauth(v validator.Validator, entry model.Entry) *Reauth {
	return &Reauth{validator: v, entry: entry}
}

// Entry returns the entry being reauthenticated.
func (r *Reauth) Entry() model.Entry {
	return r.entry
}

// Start returns the empty password form.
func (r *Reauth) Start() Transition[ReauthInput] {
	return Transition[ReauthInput]{Next: StateReauthConfirm}
}

// Step advances the flow. A validated password aborts the flow with
// reauth_successful and an EffectUpdatePassword; any validator failure
// returns to StateReauthConfirm.
func (r *Reauth) Step(
	ctx context.Context, state State, in ReauthInput,
) Transition[ReauthInput] {
	switch state {
	case StateReauthConfirm, StateValidating:
	default:
		return r.redisplay(Errors{FieldBase: validator.KeyUnknown})
	}

	if in.Password == "" {
		return r.redisplay(Errors{FieldPassword: KeyRequired})
	}
	if state == StateReauthConfirm {
		return Transition[ReauthInput]{Next: StateValidating, Input: in}
	}

	session, err := r.validator.Validate(ctx, r.entry.Connection(in.Password))
	if err != nil {
		return r.redisplay(fieldErrors(err))
	}

	return Transition[ReauthInput]{
		Next:    StateAborted,
		Reason:  ReasonReauthSuccessful,
		Session: session,
		Effect: Effect{
			Kind:     EffectUpdatePassword,
			Entry:    r.entry,
			Password: in.Password,
		},
	}
}

// Submit runs the confirm step and, when it passes, the validating step.
func (r *Reauth) Submit(ctx context.Context, in ReauthInput) Transition[ReauthInput] {
	t := r.Step(ctx, StateReauthConfirm, in)
	if t.Next != StateValidating {
		return t
	}
	return r.Step(ctx, StateValidating, in)
}

func (r *Reauth) redisplay(errs Errors) Transition[ReauthInput] {
	return Transition[ReauthInput]{Next: StateReauthConfirm, Errors: errs}
}
