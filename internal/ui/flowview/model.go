// Package flowview drives the setup, reauthentication and options flows
// in the terminal. It renders the current step, runs validation in the
// background and persists the resulting effect.
package flowview

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailflow/internal/flow"
	"github.com/nhle/mailflow/internal/i18n"
	"github.com/nhle/mailflow/internal/keys"
	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/store"
	"github.com/nhle/mailflow/internal/theme"
)

// ErrCancelled is reported when the user leaves a form without submitting.
var ErrCancelled = errors.New("cancelled")

// Mode represents the current screen of the view.
type Mode int

const (
	ModeForm       Mode = iota // Collecting input
	ModeValidating             // Validator running
	ModeSaving                 // Persisting the effect
	ModeResult                 // Terminal outcome shown
)

// Kind selects which flow the view drives.
type Kind int

const (
	KindSetup Kind = iota
	KindReauth
	KindOptions
)

// Applier persists the effect of a finished flow.
type Applier interface {
	Apply(ctx context.Context, effect flow.Effect) (model.Entry, error)
}

// Result is the outcome once the view has quit.
type Result struct {
	Next   flow.State
	Reason flow.Reason
	Entry  model.Entry
	Err    error
}

// stepResultMsg carries the outcome of one flow step.
type stepResultMsg struct {
	next   flow.State
	errors flow.Errors
	reason flow.Reason
	effect flow.Effect
}

// appliedMsg is sent after the effect has been persisted.
type appliedMsg struct {
	entry model.Entry
	err   error
}

// values holds what the form fields are bound to. It lives behind a
// pointer so huh keeps writing to the same fields across Model copies.
type values struct {
	username string
	password string
	server   string
	port     string
	charset  string
	folder   string
	search   string
	cipher   string
	maxSize  string
}

// Model is the Bubble Tea model for one flow run.
type Model struct {
	ctx  context.Context
	kind Kind
	mode Mode

	setup   *flow.Setup
	reauth  *flow.Reauth
	options *flow.Options
	applier Applier

	tr      *i18n.Translator
	keys    *keys.KeyMap
	help    help.Model
	spinner spinner.Model

	form   *huh.Form
	vals   *values
	errs   flow.Errors
	result Result

	width, height int
}

func newModel(ctx context.Context, kind Kind, a Applier, tr *i18n.Translator, k *keys.KeyMap) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:     ctx,
		kind:    kind,
		mode:    ModeForm,
		applier: a,
		tr:      tr,
		keys:    k,
		help:    help.New(),
		spinner: sp,
		vals:    &values{},
	}
}

// NewSetup creates a view for the setup flow.
func NewSetup(ctx context.Context, s *flow.Setup, a Applier, tr *i18n.Translator, k *keys.KeyMap) Model {
	m := newModel(ctx, KindSetup, a, tr, k)
	m.setup = s
	m.vals.fromConnection(s.Start().Input)
	m.form = m.buildForm()
	return m
}

// NewReauth creates a view for the reauthentication flow.
func NewReauth(ctx context.Context, r *flow.Reauth, a Applier, tr *i18n.Translator, k *keys.KeyMap) Model {
	m := newModel(ctx, KindReauth, a, tr, k)
	m.reauth = r
	m.form = m.buildForm()
	return m
}

// NewOptions creates a view for the options flow.
func NewOptions(ctx context.Context, o *flow.Options, a Applier, tr *i18n.Translator, k *keys.KeyMap) Model {
	m := newModel(ctx, KindOptions, a, tr, k)
	m.options = o
	m.vals.fromOptions(o.Start().Input)
	m.form = m.buildForm()
	return m
}

// Result returns the outcome. It is meaningful once the program exits.
func (m Model) Result() Result {
	return m.result
}

// Kind returns the driven flow.
func (m Model) Kind() Kind {
	return m.kind
}

// Mode returns the current screen.
func (m Model) Mode() Mode {
	return m.mode
}

// Errors returns the error annotations of the current form.
func (m Model) Errors() flow.Errors {
	return m.errs
}

// Init starts the first form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case stepResultMsg:
		return m.handleStep(msg)

	case appliedMsg:
		m.mode = ModeResult
		if errors.Is(msg.err, store.ErrAlreadyExists) {
			m.result.Next = flow.StateAborted
			m.result.Reason = flow.ReasonAlreadyConfigured
			return m, nil
		}
		m.result.Entry = msg.entry
		m.result.Err = msg.err
		return m, nil

	case spinner.TickMsg:
		if m.mode == ModeValidating || m.mode == ModeSaving {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode != ModeForm {
			return m.handleKeyMsg(msg)
		}
	}

	if m.mode == ModeForm {
		return m.updateForm(msg)
	}
	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		if m.mode != ModeResult {
			m.result.Err = ErrCancelled
		}
		return m, tea.Quit
	}
	if m.mode != ModeResult {
		return m, nil
	}
	if key.Matches(msg, m.keys.Retry) && m.result.Err != nil {
		m.result = Result{}
		m.mode = ModeForm
		m.form = m.buildForm()
		return m, m.form.Init()
	}
	return m, tea.Quit
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m.submit()
	case huh.StateAborted:
		m.result.Err = ErrCancelled
		return m, tea.Quit
	}
	return m, cmd
}

// submit runs the form step locally and starts validation when it passes.
func (m Model) submit() (tea.Model, tea.Cmd) {
	res := m.step(m.ctx, m.formState())
	if res.next != flow.StateValidating {
		return m.handleStep(res)
	}

	m.mode = ModeValidating
	ctx := m.ctx
	return m, tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return m.step(ctx, flow.StateValidating) },
	)
}

func (m Model) handleStep(msg stepResultMsg) (tea.Model, tea.Cmd) {
	if !msg.next.Terminal() {
		m.mode = ModeForm
		m.errs = msg.errors
		m.vals.password = ""
		m.form = m.buildForm()
		return m, m.form.Init()
	}

	m.errs = nil
	m.result.Next = msg.next
	m.result.Reason = msg.reason
	m.result.Entry = msg.effect.Entry

	if msg.effect.Kind == flow.EffectNone {
		m.mode = ModeResult
		return m, nil
	}

	m.mode = ModeSaving
	a, ctx, effect := m.applier, m.ctx, msg.effect
	return m, tea.Batch(
		m.spinner.Tick,
		func() tea.Msg {
			entry, err := a.Apply(ctx, effect)
			return appliedMsg{entry: entry, err: err}
		},
	)
}

// step runs one transition of the driven flow with the bound values.
func (m Model) step(ctx context.Context, state flow.State) stepResultMsg {
	switch m.kind {
	case KindSetup:
		t := m.setup.Step(ctx, state, m.vals.connection())
		return stepResultMsg{next: t.Next, errors: t.Errors, reason: t.Reason, effect: t.Effect}
	case KindReauth:
		t := m.reauth.Step(ctx, state, flow.ReauthInput{Password: m.vals.password})
		return stepResultMsg{next: t.Next, errors: t.Errors, reason: t.Reason, effect: t.Effect}
	default:
		t := m.options.Step(ctx, state, m.vals.optionsConfig())
		return stepResultMsg{next: t.Next, errors: t.Errors, reason: t.Reason, effect: t.Effect}
	}
}

func (m Model) formState() flow.State {
	switch m.kind {
	case KindSetup:
		return flow.StateUser
	case KindReauth:
		return flow.StateReauthConfirm
	default:
		return flow.StateInit
	}
}

func (m Model) scope() i18n.Scope {
	if m.kind == KindOptions {
		return i18n.ScopeOptions
	}
	return i18n.ScopeConfig
}

// --- Forms ---

func (m Model) buildForm() *huh.Form {
	var fields []huh.Field
	switch m.kind {
	case KindSetup:
		fields = m.setupFields()
	case KindReauth:
		fields = []huh.Field{
			m.input(flow.FieldPassword, &m.vals.password).EchoMode(huh.EchoModePassword),
		}
	default:
		fields = []huh.Field{
			m.input(flow.FieldFolder, &m.vals.folder),
			m.input(flow.FieldSearch, &m.vals.search),
			m.input(flow.FieldMaxMessageSize, &m.vals.maxSize),
		}
	}
	return huh.NewForm(huh.NewGroup(fields...)).WithWidth(m.formWidth())
}

func (m Model) setupFields() []huh.Field {
	ciphers := make([]huh.Option[string], 0, len(model.SSLCipherLists))
	for _, c := range model.SSLCipherLists {
		ciphers = append(ciphers, huh.NewOption(m.tr.CipherList(c), string(c)))
	}

	return []huh.Field{
		m.input(flow.FieldUsername, &m.vals.username),
		m.input(flow.FieldPassword, &m.vals.password).EchoMode(huh.EchoModePassword),
		m.input(flow.FieldServer, &m.vals.server),
		m.input(flow.FieldPort, &m.vals.port),
		m.input(flow.FieldCharset, &m.vals.charset),
		m.input(flow.FieldFolder, &m.vals.folder),
		m.input(flow.FieldSearch, &m.vals.search),
		m.selectCipher(ciphers),
	}
}

func (m Model) selectCipher(ciphers []huh.Option[string]) *huh.Select[string] {
	sel := huh.NewSelect[string]().
		Title(m.tr.Field(m.scope(), m.formState(), flow.FieldSSLCipherList)).
		Options(ciphers...).
		Value(&m.vals.cipher)
	if key, ok := m.errs[flow.FieldSSLCipherList]; ok {
		sel = sel.Description(m.tr.Error(m.scope(), key))
	}
	return sel
}

// formFields lists the fields the current form has an input for.
func (m Model) formFields() []string {
	switch m.kind {
	case KindSetup:
		return []string{
			flow.FieldUsername, flow.FieldPassword, flow.FieldServer, flow.FieldPort,
			flow.FieldCharset, flow.FieldFolder, flow.FieldSearch, flow.FieldSSLCipherList,
		}
	case KindReauth:
		return []string{flow.FieldPassword}
	default:
		return []string{flow.FieldFolder, flow.FieldSearch, flow.FieldMaxMessageSize}
	}
}

func (m Model) input(field string, value *string) *huh.Input {
	in := huh.NewInput().
		Title(m.tr.Field(m.scope(), m.formState(), field)).
		Value(value)
	if key, ok := m.errs[field]; ok {
		in = in.Description(m.tr.Error(m.scope(), key))
	}
	return in
}

// --- View ---

// View renders the current screen.
func (m Model) View() string {
	var content string
	switch m.mode {
	case ModeForm:
		content = m.viewForm()
	case ModeValidating, ModeSaving:
		content = fmt.Sprintf("%s %s",
			m.spinner.View(),
			m.tr.Title(m.scope(), flow.StateValidating),
		)
	case ModeResult:
		content = m.viewResult()
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Render(content)
}

func (m Model) viewForm() string {
	var b strings.Builder

	b.WriteString(theme.HeaderStyle.Render(m.tr.Title(m.scope(), m.formState())))
	b.WriteString("\n\n")

	if desc := m.description(); desc != "" {
		b.WriteString(theme.HelpStyle.Render(desc))
		b.WriteString("\n\n")
	}

	if base, ok := m.errs[flow.FieldBase]; ok {
		b.WriteString(theme.ErrorStyle.Render(m.tr.Error(m.scope(), base)))
		b.WriteString("\n\n")
	}
	for _, field := range m.errorFields() {
		line := fmt.Sprintf("%s: %s",
			m.tr.Field(m.scope(), m.formState(), field),
			m.tr.Error(m.scope(), m.errs[field]),
		)
		b.WriteString(theme.ErrorStyle.Render(line))
		b.WriteString("\n")
	}

	b.WriteString(m.form.View())
	return b.String()
}

func (m Model) description() string {
	switch m.kind {
	case KindReauth:
		return m.tr.Description(m.scope(), m.formState(), map[string]any{
			"Username": m.reauth.Entry().Username,
		})
	case KindOptions:
		return m.tr.Description(m.scope(), m.formState(), map[string]any{
			"Title": m.options.Entry().Title,
		})
	default:
		return m.tr.Description(m.scope(), m.formState(), nil)
	}
}

// errorFields lists annotated fields that have no input on the current
// form, in a stable order. Errors of shown inputs render as their
// description.
func (m Model) errorFields() []string {
	fields := make([]string, 0, len(m.errs))
	for f := range m.errs {
		if f != flow.FieldBase && !slices.Contains(m.formFields(), f) {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	return fields
}

func (m Model) viewResult() string {
	var line string
	switch {
	case m.result.Err != nil:
		line = theme.ErrorStyle.Render(m.result.Err.Error())
	case m.result.Reason == flow.ReasonAlreadyConfigured:
		line = theme.ErrorStyle.Render(m.tr.Abort(m.result.Reason))
	case m.result.Reason != "":
		line = theme.SuccessStyle.Render(m.tr.Abort(m.result.Reason))
	case m.kind == KindOptions:
		line = theme.SuccessStyle.Render(m.tr.T("options.done.updated", map[string]any{"Title": m.result.Entry.Title}))
	default:
		line = theme.SuccessStyle.Render(m.tr.T("config.done.created", map[string]any{"Title": m.result.Entry.Title}))
	}
	bindings := []key.Binding{m.keys.Quit}
	if m.result.Err != nil {
		bindings = m.keys.ShortHelp()
	}
	return line + "\n\n" + m.help.ShortHelpView(bindings)
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// --- Value conversion ---

func (v *values) fromConnection(c model.ConnectionConfig) {
	v.username = c.Username
	v.server = c.Server
	v.port = strconv.Itoa(c.Port)
	v.charset = c.Charset
	v.folder = c.Folder
	v.search = c.Search
	v.cipher = string(c.SSLCipherList)
}

func (v *values) fromOptions(o model.OptionsConfig) {
	v.folder = o.Folder
	v.search = o.Search
	v.maxSize = strconv.Itoa(o.MaxMessageSize)
}

func (v *values) connection() model.ConnectionConfig {
	return model.ConnectionConfig{
		Username:      v.username,
		Password:      v.password,
		Server:        v.server,
		Port:          parseNumber(v.port),
		Charset:       v.charset,
		Folder:        v.folder,
		Search:        v.search,
		SSLCipherList: model.SSLCipherList(v.cipher),
	}
}

func (v *values) optionsConfig() model.OptionsConfig {
	return model.OptionsConfig{
		Folder:         v.folder,
		Search:         v.search,
		MaxMessageSize: parseNumber(v.maxSize),
	}
}

// parseNumber returns 0 for an empty string and -1 for anything that is
// not a number, so range checks reject it.
func parseNumber(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
