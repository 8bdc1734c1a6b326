// Package logging builds the leveled loggers shared by every package.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gologme/log"
)

// Levels in increasing verbosity. Enabling one enables all before it.
var Levels = []string{"error", "warn", "info", "debug"}

// New returns a logger writing to w with a colored component prefix,
// e.g. "[ validator ] ". level is one of Levels.
func New(w io.Writer, component, level string) (*log.Logger, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = "info"
	}

	n := -1
	for i, l := range Levels {
		if l == level {
			n = i
			break
		}
	}
	if n < 0 {
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	prefix := ""
	if component != "" {
		yellow := color.New(color.FgYellow).SprintfFunc()
		prefix = fmt.Sprintf("[ %s ] ", yellow(component))
	}

	logger := log.New(w, prefix, log.LstdFlags|log.Lmsgprefix)
	for _, l := range Levels[:n+1] {
		logger.EnableLevel(l)
	}
	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
