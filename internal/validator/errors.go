package validator

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/emersion/go-imap/v2"
)

// ErrorKey is the message identifier reported for a failed attempt.
// Keys double as translation IDs.
type ErrorKey string

const (
	KeyCannotConnect  ErrorKey = "cannot_connect"
	KeyInvalidAuth    ErrorKey = "invalid_auth"
	KeySSLError       ErrorKey = "ssl_error"
	KeyInvalidCharset ErrorKey = "invalid_charset"
	KeyInvalidFolder  ErrorKey = "invalid_folder"
	KeyInvalidSearch  ErrorKey = "invalid_search"

	// KeyUnknown covers failures that fit none of the kinds above.
	KeyUnknown ErrorKey = "unknown"
)

// Error is returned by Validate for every failed attempt. Exactly one
// key is reported per attempt.
type Error struct {
	Key ErrorKey
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Key)
	}
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps err with key.
func newError(key ErrorKey, err error) *Error {
	return &Error{Key: key, Err: err}
}

// KeyOf returns the key carried by err, KeyUnknown when err is not a
// validation error, and "" for a nil error.
func KeyOf(err error) ErrorKey {
	if err == nil {
		return ""
	}
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Key
	}
	return KeyUnknown
}

// IsAuth reports whether err (or any error in its chain) is a rejected
// login.
func IsAuth(err error) bool {
	return KeyOf(err) == KeyInvalidAuth
}

// IsConnectivity reports whether err is a transient transport or TLS
// failure that may succeed when retried unchanged.
func IsConnectivity(err error) bool {
	switch KeyOf(err) {
	case KeyCannotConnect, KeySSLError:
		return true
	}
	return false
}

// classifyHandshake maps an error from the TLS handshake. Deadline
// expiry is a transport failure; anything else failed negotiation.
func classifyHandshake(err error) *Error {
	if isTimeout(err) {
		return newError(KeyCannotConnect, err)
	}
	return newError(KeySSLError, err)
}

// classifyDial maps an error from establishing the TCP connection.
func classifyDial(err error) *Error {
	if isTLSFailure(err) {
		return newError(KeySSLError, err)
	}
	return newError(KeyCannotConnect, err)
}

// classifyCommand maps an error returned by an IMAP command. fallback is
// used for NO/BAD responses, transport errors become cannot_connect.
func classifyCommand(err error, fallback ErrorKey) *Error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		switch imapErr.Code {
		case imap.ResponseCodeBadCharset:
			return newError(KeyInvalidCharset, err)
		case imap.ResponseCodeAuthenticationFailed,
			imap.ResponseCodeAuthorizationFailed,
			imap.ResponseCodeExpired:
			return newError(KeyInvalidAuth, err)
		}
		return newError(fallback, err)
	}
	if isTLSFailure(err) {
		return newError(KeySSLError, err)
	}
	return newError(KeyCannotConnect, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTLSFailure(err error) bool {
	var (
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &certErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
