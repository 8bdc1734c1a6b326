// Package app wires configuration, storage, credentials and the
// validator together and runs the mailflow commands.
package app

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gologme/log"

	"github.com/nhle/mailflow/internal/credential"
	"github.com/nhle/mailflow/internal/entries"
	"github.com/nhle/mailflow/internal/flow"
	"github.com/nhle/mailflow/internal/health"
	"github.com/nhle/mailflow/internal/i18n"
	"github.com/nhle/mailflow/internal/keys"
	"github.com/nhle/mailflow/internal/logging"
	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/store"
	"github.com/nhle/mailflow/internal/theme"
	"github.com/nhle/mailflow/internal/ui/flowview"
	"github.com/nhle/mailflow/internal/validator"
)

// ErrUsage is returned for an unknown command or missing arguments.
var ErrUsage = errors.New("usage")

// Commands lists the supported commands with a short description.
var Commands = [][2]string{
	{"setup", "add an IMAP account"},
	{"reauth <id>", "enter a new password for an account"},
	{"options <id>", "change folder, search and message size"},
	{"list", "show configured accounts"},
	{"check", "verify the stored credentials of every account"},
	{"remove <id>", "delete an account and its password"},
}

// Deps are the collaborators of an App.
type Deps struct {
	Store     store.Store
	Secrets   credential.Secrets
	Validator validator.Validator
	Logger    *log.Logger
	Out       io.Writer

	// RunView runs an interactive view to completion. It defaults to a
	// full-screen Bubble Tea program.
	RunView func(ctx context.Context, m tea.Model) (tea.Model, error)
}

// App runs mailflow commands.
type App struct {
	cfg       *model.AppConfig
	manager   *entries.Manager
	validator validator.Validator
	tr        *i18n.Translator
	keys      *keys.KeyMap
	log       *log.Logger
	out       io.Writer
	runView   func(ctx context.Context, m tea.Model) (tea.Model, error)
	closers   []io.Closer
}

// New builds an App from deps.
func New(cfg *model.AppConfig, deps Deps) (*App, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	out := deps.Out
	if out == nil {
		out = os.Stdout
	}
	runView := deps.RunView
	if runView == nil {
		runView = runProgram
	}

	tr, err := i18n.New(cfg.Locale, logger)
	if err != nil {
		return nil, fmt.Errorf("loading translations: %w", err)
	}

	return &App{
		cfg:       cfg,
		manager:   entries.NewManager(deps.Store, deps.Secrets, logger),
		validator: deps.Validator,
		tr:        tr,
		keys:      keys.DefaultKeyMap(),
		log:       logger,
		out:       out,
		runView:   runView,
	}, nil
}

// Open builds an App backed by the configured database, the system
// keyring and a live IMAP validator. Logs go to the configured log file.
func Open(cfg *model.AppConfig, out io.Writer) (*App, error) {
	var logOut io.Writer = io.Discard
	var logFile io.Closer
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := tea.LogToFile(cfg.Log.File, "")
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logOut, logFile = f, f
	}

	a, err := open(cfg, out, logOut)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}
	if logFile != nil {
		a.closers = append(a.closers, logFile)
	}
	return a, nil
}

func open(cfg *model.AppConfig, out, logOut io.Writer) (*App, error) {
	logger, err := logging.New(logOut, "mailflow", cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	secrets, err := credential.Open(cfg.Keyring)
	if err != nil {
		st.Close()
		return nil, err
	}

	roots, err := x509.SystemCertPool()
	if err != nil {
		logger.Warnf("loading system certificates: %v", err)
		roots = nil
	}
	v := validator.NewSerialized(validator.NewIMAPValidator(validator.Options{
		Timeout: cfg.Validator.Timeout(),
		RootCAs: roots,
		Logger:  logger,
	}))

	a, err := New(cfg, Deps{
		Store:     st,
		Secrets:   secrets,
		Validator: v,
		Logger:    logger,
		Out:       out,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	a.closers = append(a.closers, st)
	return a, nil
}

// Close releases the resources opened by Open.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Run dispatches args[0] to the matching command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "setup":
		return a.Setup(ctx)
	case "list":
		return a.List(ctx)
	case "check":
		return a.Check(ctx)
	case "reauth", "options", "remove":
		if len(rest) != 1 {
			return fmt.Errorf("%w: %s needs an entry id", ErrUsage, cmd)
		}
		switch cmd {
		case "reauth":
			return a.Reauth(ctx, rest[0])
		case "options":
			return a.Options(ctx, rest[0])
		default:
			return a.Remove(ctx, rest[0])
		}
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

// Setup runs the interactive flow adding a new account.
func (a *App) Setup(ctx context.Context) error {
	s := flow.NewSetup(a.validator, flow.SnapshotFunc(a.manager.Snapshot))
	return a.runFlow(ctx, flowview.NewSetup(ctx, s, a.manager, a.tr, a.keys))
}

// Reauth runs the interactive flow replacing the password of entry id.
func (a *App) Reauth(ctx context.Context, id string) error {
	e, err := a.manager.Entry(ctx, id)
	if err != nil {
		return err
	}
	r := flow.NewReauth(a.validator, e)
	return a.runFlow(ctx, flowview.NewReauth(ctx, r, a.manager, a.tr, a.keys))
}

// Options runs the interactive flow changing the options of entry id.
func (a *App) Options(ctx context.Context, id string) error {
	e, err := a.manager.Entry(ctx, id)
	if err != nil {
		return err
	}
	password, err := a.manager.Password(e)
	if err != nil {
		return fmt.Errorf("entry %s has no usable password, run reauth first: %w", id, err)
	}
	o := flow.NewOptions(a.validator, flow.SnapshotFunc(a.manager.Snapshot), e, password)
	return a.runFlow(ctx, flowview.NewOptions(ctx, o, a.manager, a.tr, a.keys))
}

func (a *App) runFlow(ctx context.Context, m flowview.Model) error {
	final, err := a.runView(ctx, m)
	if err != nil {
		return fmt.Errorf("running view: %w", err)
	}
	res := final.(flowview.Model).Result()
	if errors.Is(res.Err, flowview.ErrCancelled) {
		return nil
	}
	return res.Err
}

// List prints every configured account.
func (a *App) List(ctx context.Context) error {
	snapshot, err := a.manager.Snapshot(ctx)
	if err != nil {
		return err
	}
	if len(snapshot) == 0 {
		fmt.Fprintln(a.out, theme.HelpStyle.Render("no accounts configured"))
		return nil
	}

	t := table.New().Headers("ID", "TITLE", "SERVER", "FOLDER", "SEARCH", "STATE")
	for _, e := range snapshot {
		t.Row(
			e.ID,
			e.Title,
			fmt.Sprintf("%s:%d", e.Server, e.Port),
			e.Options.Folder,
			e.Options.Search,
			theme.StateStyle(string(e.State)).Render(a.tr.State(e.State)),
		)
	}
	fmt.Fprintln(a.out, t.String())
	return nil
}

// Check validates the stored credentials of every account and prints the
// outcome. Accounts with rejected logins are flagged for reauth.
func (a *App) Check(ctx context.Context) error {
	checker := health.NewChecker(a.manager, a.validator, a.cfg.Health.Concurrency, a.log)
	results, err := checker.Run(ctx)
	if err != nil {
		return err
	}

	t := table.New().Headers("ID", "TITLE", "STATE", "ERROR")
	var reauth []string
	for _, r := range results {
		msg := ""
		if r.Err != nil {
			msg = a.tr.Error(i18n.ScopeConfig, validator.KeyOf(r.Err))
		}
		if r.NeedsReauth() {
			reauth = append(reauth, r.Entry.ID)
		}
		t.Row(
			r.Entry.ID,
			r.Entry.Title,
			theme.StateStyle(string(r.State)).Render(a.tr.State(r.State)),
			msg,
		)
	}
	fmt.Fprintln(a.out, t.String())

	for _, id := range reauth {
		fmt.Fprintln(a.out, theme.ErrorStyle.Render("mailflow reauth "+id))
	}
	return nil
}

// Remove deletes entry id and its stored password.
func (a *App) Remove(ctx context.Context, id string) error {
	if err := a.manager.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, theme.SuccessStyle.Render("removed "+id))
	return nil
}

func runProgram(ctx context.Context, m tea.Model) (tea.Model, error) {
	return tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
}
