// Package i18n resolves the message keys emitted by the flows into
// user-facing text. Missing translations fall back to English, then to
// the message ID itself.
package i18n

import (
	"embed"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/gologme/log"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/nhle/mailflow/internal/flow"
	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/validator"
)

//go:embed locales/*.toml
var locales embed.FS

var localeFiles = []string{
	"locales/active.en.toml",
	"locales/active.de.toml",
}

// Scope separates setup/reauth messages from options messages.
type Scope string

const (
	ScopeConfig  Scope = "config"
	ScopeOptions Scope = "options"
)

// NewBundle returns a bundle with every embedded locale loaded.
func NewBundle() (*goi18n.Bundle, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, name := range localeFiles {
		if _, err := bundle.LoadMessageFileFS(locales, name); err != nil {
			return nil, fmt.Errorf("loading locale %s: %w", name, err)
		}
	}
	return bundle, nil
}

// Languages lists the bundled language tags.
func Languages(bundle *goi18n.Bundle) []string {
	tags := bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tag.String())
	}
	return out
}

// Translator localizes messages for one language.
type Translator struct {
	loc *goi18n.Localizer
	log *log.Logger
}

// New creates a translator for lang, e.g. "de" or "en-US".
func New(lang string, logger *log.Logger) (*Translator, error) {
	bundle, err := NewBundle()
	if err != nil {
		return nil, err
	}
	return NewTranslator(bundle, lang, logger), nil
}

// NewTranslator creates a translator over an existing bundle.
func NewTranslator(bundle *goi18n.Bundle, lang string, logger *log.Logger) *Translator {
	if lang == "" {
		lang = language.English.String()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Translator{
		loc: goi18n.NewLocalizer(bundle, lang),
		log: logger,
	}
}

func (t *Translator) lookup(id string, data map[string]any) (string, error) {
	return t.loc.Localize(&goi18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
}

// T translates a message ID, returning the ID when it is unknown.
func (t *Translator) T(id string, data map[string]any) string {
	msg, err := t.lookup(id, data)
	if err != nil {
		t.log.Debugf("translation error for %q: %v", id, err)
		return id
	}
	return msg
}

// Error translates an error key shown on a form. Options errors without
// their own wording reuse the setup wording.
func (t *Translator) Error(scope Scope, key validator.ErrorKey) string {
	id := fmt.Sprintf("%s.error.%s", scope, key)
	if msg, err := t.lookup(id, nil); err == nil {
		return msg
	}
	if scope != ScopeConfig {
		return t.Error(ScopeConfig, key)
	}
	return t.T(id, nil)
}

// Abort translates the reason a flow aborted.
func (t *Translator) Abort(reason flow.Reason) string {
	return t.T(fmt.Sprintf("%s.abort.%s", ScopeConfig, reason), nil)
}

// Field translates the label of a form field on a step. Fields without a
// label on that step use their setup form label.
func (t *Translator) Field(scope Scope, step flow.State, field string) string {
	id := fmt.Sprintf("%s.step.%s.data.%s", scope, step, field)
	if msg, err := t.lookup(id, nil); err == nil {
		return msg
	}
	if scope != ScopeConfig || step != flow.StateUser {
		return t.Field(ScopeConfig, flow.StateUser, field)
	}
	return t.T(id, nil)
}

// Title translates the title of a step.
func (t *Translator) Title(scope Scope, step flow.State) string {
	return t.T(fmt.Sprintf("%s.step.%s.title", scope, step), nil)
}

// Description translates the description of a step.
func (t *Translator) Description(scope Scope, step flow.State, data map[string]any) string {
	return t.T(fmt.Sprintf("%s.step.%s.description", scope, step), data)
}

// CipherList translates a cipher list option for selectors.
func (t *Translator) CipherList(list model.SSLCipherList) string {
	return t.T("selector.ssl_cipher_list."+string(list), nil)
}

// State translates an entry state.
func (t *Translator) State(state model.EntryState) string {
	return t.T("state."+string(state), nil)
}
