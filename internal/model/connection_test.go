package model

import (
	"testing"
	"time"
)

func TestNormalizedFillsDefaults(t *testing.T) {
	c := ConnectionConfig{
		Username: "  a@example.com ",
		Server:   " imap.example.com",
		Port:     993,
	}.Normalized()

	if c.Username != "a@example.com" || c.Server != "imap.example.com" {
		t.Errorf("not trimmed: %+v", c)
	}
	if c.Charset != DefaultCharset || c.Folder != DefaultFolder || c.Search != DefaultSearch {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.SSLCipherList != SSLCipherPythonDefault {
		t.Errorf("SSLCipherList = %q, want %q", c.SSLCipherList, SSLCipherPythonDefault)
	}
}

func TestIdentityEqual(t *testing.T) {
	base := Identity{Server: "imap.example.com", Port: 993, Username: "a@example.com"}

	tests := []struct {
		name  string
		other Identity
		want  bool
	}{
		{"same", base, true},
		{"case differs", Identity{Server: "IMAP.Example.com", Port: 993, Username: "A@Example.com"}, true},
		{"other port", Identity{Server: "imap.example.com", Port: 143, Username: "a@example.com"}, false},
		{"other user", Identity{Server: "imap.example.com", Port: 993, Username: "b@example.com"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Equal(tt.other); got != tt.want {
				t.Errorf("Equal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSSLCipherListValid(t *testing.T) {
	for _, c := range SSLCipherLists {
		if !c.Valid() {
			t.Errorf("%q reported invalid", c)
		}
	}
	for _, c := range []SSLCipherList{"", "legacy", "MODERN"} {
		if c.Valid() {
			t.Errorf("%q reported valid", c)
		}
	}
}

func TestMaxMessageSizeValid(t *testing.T) {
	tests := []struct {
		size int
		want bool
	}{
		{2048, false},
		{2049, true},
		{DefaultMaxMessageSize, true},
		{29999, true},
		{30000, false},
		{-1, false},
	}
	for _, tt := range tests {
		if got := MaxMessageSizeValid(tt.size); got != tt.want {
			t.Errorf("MaxMessageSizeValid(%d) = %v, want %v", tt.size, got, tt.want)
		}
	}
}

func TestNewEntryRoundTripsConnection(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := ConnectionConfig{
		Username:      "a@example.com",
		Password:      "secret",
		Server:        "imap.example.com",
		Port:          993,
		Charset:       "utf-8",
		Folder:        "Archive",
		Search:        "ALL",
		SSLCipherList: SSLCipherModern,
	}

	e := NewEntry("e1", cfg, now)
	if e.Title != cfg.Username || e.State != EntryStateLoaded {
		t.Errorf("entry = %+v", e)
	}
	if e.Options.MaxMessageSize != DefaultMaxMessageSize {
		t.Errorf("MaxMessageSize = %d, want %d", e.Options.MaxMessageSize, DefaultMaxMessageSize)
	}
	if got := e.Connection("secret"); got != cfg {
		t.Errorf("Connection = %+v, want %+v", got, cfg)
	}
	if !e.Identity().Equal(cfg.Identity()) {
		t.Error("entry identity differs from connection identity")
	}
}
