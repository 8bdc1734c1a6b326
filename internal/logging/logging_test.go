package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestNewLevels(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"error", []string{"E!"}, []string{"W!", "I!", "D!"}},
		{"warn", []string{"E!", "W!"}, []string{"I!", "D!"}},
		{"", []string{"E!", "W!", "I!"}, []string{"D!"}},
		{"DEBUG", []string{"E!", "W!", "I!", "D!"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(&buf, "validator", tt.level)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			logger.Errorln("E!")
			logger.Warnln("W!")
			logger.Infoln("I!")
			logger.Debugln("D!")

			out := buf.String()
			for _, s := range tt.visible {
				if !strings.Contains(out, s) {
					t.Errorf("output %q missing %s", out, s)
				}
			}
			for _, s := range tt.hidden {
				if strings.Contains(out, s) {
					t.Errorf("output %q contains %s", out, s)
				}
			}
			if !strings.Contains(out, "[ validator ] ") {
				t.Errorf("output %q missing prefix", out)
			}
		})
	}
}

func TestNewUnknownLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "", "verbose"); err == nil {
		t.Error("New with unknown level succeeded, want error")
	}
}
