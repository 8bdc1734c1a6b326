// Package validator checks IMAP connection settings against the live
// server: transport, TLS policy, login, charset, folder and search
// expression.
package validator

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/gologme/log"

	"github.com/nhle/mailflow/internal/model"
	"github.com/nhle/mailflow/internal/search"
)

// Session summarizes a successful validation attempt.
type Session struct {
	Capabilities []string
	Messages     uint32
	Matches      int
}

// Validator checks a connection configuration.
type Validator interface {
	Validate(ctx context.Context, cfg model.ConnectionConfig) (*Session, error)
}

// Options tunes an IMAPValidator.
type Options struct {
	// Timeout bounds a whole attempt. Zero means 30s.
	Timeout time.Duration

	// RootCAs overrides the system certificate pool.
	RootCAs *x509.CertPool

	// Logger receives progress at debug level and failures at warn level.
	Logger *log.Logger
}

// IMAPValidator validates configurations against a real IMAP server.
type IMAPValidator struct {
	timeout time.Duration
	roots   *x509.CertPool
	dialer  *net.Dialer
	log     *log.Logger
}

// NewIMAPValidator creates a validator from opts.
func NewIMAPValidator(opts Options) *IMAPValidator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &IMAPValidator{
		timeout: timeout,
		roots:   opts.RootCAs,
		dialer:  &net.Dialer{},
		log:     logger,
	}
}

// Validate runs every check in priority order and stops at the first
// failure: transport, TLS, login, charset, folder, search. Every failure
// is returned as *Error.
func (v *IMAPValidator) Validate(
	ctx context.Context, cfg model.ConnectionConfig,
) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	client, err := v.connect(ctx, cfg)
	if err != nil {
		v.log.Warnf("connecting to %s failed: %v", cfg.Address(), err)
		return nil, err
	}
	defer func() {
		_ = client.Logout().Wait()
		_ = client.Close()
	}()

	// Unblock pending commands once the attempt is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	session, err := v.probe(ctx, client, cfg)
	if err != nil {
		v.log.Warnf("validating %s failed: %v", cfg.Identity(), err)
		return nil, err
	}

	v.log.Infof(
		"validated %s: %d messages in %q, %d matching",
		cfg.Identity(), session.Messages, cfg.Folder, session.Matches,
	)
	return session, nil
}

// CheckCharset reports whether name is a charset go-message can decode.
func CheckCharset(name string) error {
	if strings.TrimSpace(name) == "" {
		return newError(KeyInvalidCharset, errors.New("charset is empty"))
	}
	if _, err := charset.Reader(name, strings.NewReader("")); err != nil {
		return newError(KeyInvalidCharset, err)
	}
	return nil
}

// connect dials the server, performs the TLS handshake and logs in.
// The caller is responsible for calling Logout/Close on the returned
// client.
func (v *IMAPValidator) connect(
	ctx context.Context, cfg model.ConnectionConfig,
) (*imapclient.Client, error) {
	tlsConfig, err := TLSConfig(cfg.SSLCipherList, cfg.Server, v.roots)
	if err != nil {
		return nil, newError(KeySSLError, err)
	}

	addr := cfg.Address()
	v.log.Debugf("dialing %s (%s)", addr, cfg.SSLCipherList)

	conn, err := v.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDial(fmt.Errorf("connecting to IMAP %s: %w", addr, err))
	}

	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, classifyHandshake(fmt.Errorf("TLS handshake with %s: %w", addr, err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = tlsConn.SetDeadline(deadline)
	}

	client := imapclient.New(tlsConn, &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	})

	if err := client.WaitGreeting(); err != nil {
		_ = client.Close()
		return nil, classifyCommand(
			fmt.Errorf("reading greeting from %s: %w", addr, err),
			KeyCannotConnect,
		)
	}

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = client.Close()
		if ctx.Err() != nil {
			return nil, newError(KeyCannotConnect, ctx.Err())
		}
		return nil, classifyCommand(
			fmt.Errorf("authentication failed for %s: %w", cfg.Username, err),
			KeyInvalidAuth,
		)
	}

	return client, nil
}

// probe checks charset, folder and search on a logged-in client.
func (v *IMAPValidator) probe(
	ctx context.Context,
	client *imapclient.Client,
	cfg model.ConnectionConfig,
) (*Session, error) {
	session := &Session{}
	for c := range client.Caps() {
		session.Capabilities = append(session.Capabilities, string(c))
	}

	if err := CheckCharset(cfg.Charset); err != nil {
		return nil, err
	}

	selected, err := client.Select(cfg.Folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(KeyCannotConnect, ctx.Err())
		}
		return nil, classifyCommand(
			fmt.Errorf("selecting %q: %w", cfg.Folder, err),
			KeyInvalidFolder,
		)
	}
	session.Messages = selected.NumMessages

	criteria, err := search.Parse(cfg.Search)
	if err != nil {
		return nil, newError(KeyInvalidSearch, err)
	}

	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(KeyCannotConnect, ctx.Err())
		}
		return nil, classifyCommand(
			fmt.Errorf("searching %q: %w", cfg.Search, err),
			KeyInvalidSearch,
		)
	}
	session.Matches = len(data.AllUIDs())

	return session, nil
}
