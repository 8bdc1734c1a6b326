package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nhle/mailflow/internal/app"
	"github.com/nhle/mailflow/internal/model"
)

func main() {
	fs := pflag.NewFlagSet("mailflow", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", model.DefaultConfigPath(), "configuration file")
	fs.String("db", "", "database file (overrides database.path)")
	fs.String("log-level", "", "one of error, warn, info, debug")
	fs.String("log-file", "", "log file (overrides log.file)")
	fs.String("lang", "", "message language, e.g. en or de")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	v := model.NewViper(*configPath)
	bindings := map[string]string{
		"database.path": "db",
		"log.level":     "log-level",
		"log.file":      "log-file",
		"locale":        "lang",
	}
	for key, flag := range bindings {
		if f := fs.Lookup(flag); f.Changed {
			v.Set(key, f.Value.String())
		}
	}

	cfg, err := model.LoadConfigFrom(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, app.ErrUsage) {
			usage(fs)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *model.AppConfig, fs *pflag.FlagSet) error {
	if fs.NArg() == 0 {
		return app.ErrUsage
	}

	a, err := app.Open(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx, fs.Args())
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: mailflow [flags] <command>\n\nCommands:\n")
	for _, c := range app.Commands {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", c[0], c[1])
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n%s", fs.FlagUsages())
}
