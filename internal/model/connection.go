package model

import (
	"fmt"
	"strings"
)

// SSLCipherList selects the TLS policy used when dialing the IMAP server.
type SSLCipherList string

const (
	SSLCipherPythonDefault SSLCipherList = "python_default"
	SSLCipherModern        SSLCipherList = "modern"
	SSLCipherIntermediate  SSLCipherList = "intermediate"
)

// SSLCipherLists is the full set of accepted cipher list values, in the
// order they are offered to the user.
var SSLCipherLists = []SSLCipherList{
	SSLCipherPythonDefault,
	SSLCipherModern,
	SSLCipherIntermediate,
}

// Valid reports whether c is one of the enumerated cipher lists.
func (c SSLCipherList) Valid() bool {
	for _, known := range SSLCipherLists {
		if c == known {
			return true
		}
	}
	return false
}

// Defaults applied to optional connection fields left empty by the user.
const (
	DefaultPort          = 993
	DefaultCharset       = "utf-8"
	DefaultFolder        = "INBOX"
	DefaultSearch        = "UnSeen UnDeleted"
	DefaultSSLCipherList = SSLCipherPythonDefault
)

// ConnectionConfig holds everything needed to reach and authenticate
// against a mail account.
type ConnectionConfig struct {
	Username      string        `json:"username"`
	Password      string        `json:"-"`
	Server        string        `json:"server"`
	Port          int           `json:"port"`
	Charset       string        `json:"charset"`
	Folder        string        `json:"folder"`
	Search        string        `json:"search"`
	SSLCipherList SSLCipherList `json:"ssl_cipher_list"`
}

// Normalized returns a copy with surrounding whitespace trimmed and
// defaults filled in for the optional fields.
func (c ConnectionConfig) Normalized() ConnectionConfig {
	c.Username = strings.TrimSpace(c.Username)
	c.Server = strings.TrimSpace(c.Server)
	c.Charset = strings.TrimSpace(c.Charset)
	c.Folder = strings.TrimSpace(c.Folder)
	c.Search = strings.TrimSpace(c.Search)

	if c.Charset == "" {
		c.Charset = DefaultCharset
	}
	if c.Folder == "" {
		c.Folder = DefaultFolder
	}
	if c.Search == "" {
		c.Search = DefaultSearch
	}
	if c.SSLCipherList == "" {
		c.SSLCipherList = DefaultSSLCipherList
	}
	return c
}

// Address returns the host:port dial address.
func (c ConnectionConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}

// Identity returns the account identity of the connection.
func (c ConnectionConfig) Identity() Identity {
	return Identity{Server: c.Server, Port: c.Port, Username: c.Username}
}

// Identity is the (server, port, username) tuple that uniquely
// identifies a configured account.
type Identity struct {
	Server   string
	Port     int
	Username string
}

// Key returns a canonical string form of the identity. Server and
// username compare case-insensitively.
func (id Identity) Key() string {
	return fmt.Sprintf("%s:%d/%s",
		strings.ToLower(strings.TrimSpace(id.Server)),
		id.Port,
		strings.ToLower(strings.TrimSpace(id.Username)),
	)
}

// Equal reports whether both identities name the same account.
func (id Identity) Equal(other Identity) bool {
	return id.Key() == other.Key()
}

func (id Identity) String() string {
	return id.Key()
}
