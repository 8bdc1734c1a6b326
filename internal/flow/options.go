package flow

import (
	"context"

	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/validator"
)

// Options edits the folder, search and size threshold of an entry.
type Options struct {
	validator validator.Validator
	snapshots Snapshots
	entry     model.Entry
	password  string
}

// NewOptions opens an options flow for entry. password is the entry's
// stored secret, used to log in while checking the new folder and search.
func NewOptions(
	v validator.Validator, snapshots Snapshots, entry model.Entry, password string,
) *Options {
	return &Options{
		validator: v,
		snapshots: snapshots,
		entry:     entry,
		password:  password,
	}
}

// Entry returns the entry being edited.
func (o *Options) Entry() model.Entry {
	return o.entry
}

// Start returns the form pre-filled with the current options.
func (o *Options) Start() Transition[model.OptionsConfig] {
	return Transition[model.OptionsConfig]{Next: StateInit, Input: o.entry.Options}
}

// Step advances the flow. The size range is checked first without any
// network call, then (folder, search) uniqueness against other entries
// when the pair changed, then the validator. Success ends in StateDone with an
// EffectReplaceOptions carrying the whole submitted OptionsConfig.
func (o *Options) Step(
	ctx context.Context, state State, in model.OptionsConfig,
) Transition[model.OptionsConfig] {
	in = in.Normalized()

	switch state {
	case StateInit, StateValidating:
	default:
		return o.redisplay(in, Errors{FieldBase: validator.KeyUnknown})
	}

	if !model.MaxMessageSizeValid(in.MaxMessageSize) {
		return o.redisplay(in, Errors{FieldMaxMessageSize: KeyInvalidValue})
	}
	if in.Folder != o.entry.Options.Folder || in.Search != o.entry.Options.Search {
		snapshot, err := loadSnapshot(ctx, o.snapshots)
		if err != nil {
			return o.redisplay(in, Errors{FieldBase: validator.KeyUnknown})
		}
		if snapshot.HasSearchPair(o.entry.ID, in.Folder, in.Search) {
			return o.redisplay(in, Errors{FieldBase: KeyAlreadyConfigured})
		}
	}
	if state == StateInit {
		return Transition[model.OptionsConfig]{Next: StateValidating, Input: in}
	}

	cfg := o.entry.Connection(o.password)
	cfg.Folder = in.Folder
	cfg.Search = in.Search

	session, err := o.validator.Validate(ctx, cfg)
	if err != nil {
		return o.redisplay(in, fieldErrors(err))
	}

	return Transition[model.OptionsConfig]{
		Next:    StateDone,
		Session: session,
		Input:   in,
		Effect: Effect{
			Kind:    EffectReplaceOptions,
			Entry:   o.entry,
			Options: in,
		},
	}
}

// Submit runs the init step and, when it passes, the validating step.
func (o *Options) Submit(
	ctx context.Context, in model.OptionsConfig,
) Transition[model.OptionsConfig] {
	t := o.Step(ctx, StateInit, in)
	if t.Next != StateValidating {
		return t
	}
	return o.Step(ctx, StateValidating, in)
}

func (o *Options) redisplay(
	in model.OptionsConfig, errs Errors,
) Transition[model.OptionsConfig] {
	return Transition[model.OptionsConfig]{Next: StateInit, Errors: errs, Input: in}
}
