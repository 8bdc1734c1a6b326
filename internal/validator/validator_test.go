package validator

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"

	"github.com/nhle/mailflow/internal/model"
)

const (
	testUser     = "a@example.com"
	testPassword = "correct horse"
)

// testServer is an in-process IMAP server reachable over implicit TLS.
type testServer struct {
	port  int
	roots *x509.CertPool
}

// newTestCert returns a self-signed certificate for 127.0.0.1 and a pool
// trusting it.
func newTestCert(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "mailflow test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, pool
}

// newTestServer starts an imapmemserver with one user owning INBOX and
// Archive. maxVersion caps the server's TLS version when non-zero.
func newTestServer(t *testing.T, maxVersion uint16) *testServer {
	t.Helper()

	cert, pool := newTestCert(t)

	mem := imapmemserver.New()
	user := imapmemserver.NewUser(testUser, testPassword)
	for _, name := range []string{"INBOX", "Archive"} {
		if err := user.Create(name, nil); err != nil {
			t.Fatalf("creating mailbox %s: %v", name, err)
		}
	}
	mem.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
			imap.CapIMAP4rev2: {},
		},
		InsecureAuth: true,
	})

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		MaxVersion:   maxVersion,
	})
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	return &testServer{
		port:  ln.Addr().(*net.TCPAddr).Port,
		roots: pool,
	}
}

func (s *testServer) config() model.ConnectionConfig {
	return model.ConnectionConfig{
		Username:      testUser,
		Password:      testPassword,
		Server:        "127.0.0.1",
		Port:          s.port,
		Charset:       "utf-8",
		Folder:        "INBOX",
		Search:        "UnSeen UnDeleted",
		SSLCipherList: model.SSLCipherPythonDefault,
	}
}

func (s *testServer) validator() *IMAPValidator {
	return NewIMAPValidator(Options{Timeout: 5 * time.Second, RootCAs: s.roots})
}

func TestValidateSuccess(t *testing.T) {
	srv := newTestServer(t, 0)

	for _, list := range model.SSLCipherLists {
		t.Run(string(list), func(t *testing.T) {
			cfg := srv.config()
			cfg.SSLCipherList = list
			cfg.Folder = "Archive"

			session, err := srv.validator().Validate(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if len(session.Capabilities) == 0 {
				t.Error("expected capabilities to be reported")
			}
			if session.Messages != 0 {
				t.Errorf("Messages = %d, want 0", session.Messages)
			}
		})
	}
}

func TestValidateFailureKinds(t *testing.T) {
	srv := newTestServer(t, 0)

	tests := []struct {
		name   string
		mutate func(*model.ConnectionConfig)
		want   ErrorKey
	}{
		{
			name:   "wrong password",
			mutate: func(c *model.ConnectionConfig) { c.Password = "wrong" },
			want:   KeyInvalidAuth,
		},
		{
			name:   "unknown user",
			mutate: func(c *model.ConnectionConfig) { c.Username = "nobody@example.com" },
			want:   KeyInvalidAuth,
		},
		{
			name:   "unsupported charset",
			mutate: func(c *model.ConnectionConfig) { c.Charset = "x-no-such-charset" },
			want:   KeyInvalidCharset,
		},
		{
			name:   "missing folder",
			mutate: func(c *model.ConnectionConfig) { c.Folder = "Nope" },
			want:   KeyInvalidFolder,
		},
		{
			name:   "malformed search",
			mutate: func(c *model.ConnectionConfig) { c.Search = "UNSEEN SINCE tomorrow" },
			want:   KeyInvalidSearch,
		},
		{
			name: "auth reported before charset",
			mutate: func(c *model.ConnectionConfig) {
				c.Password = "wrong"
				c.Charset = "x-no-such-charset"
			},
			want: KeyInvalidAuth,
		},
		{
			name: "folder reported before search",
			mutate: func(c *model.ConnectionConfig) {
				c.Folder = "Nope"
				c.Search = "BOGUS"
			},
			want: KeyInvalidFolder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := srv.config()
			tt.mutate(&cfg)

			_, err := srv.validator().Validate(context.Background(), cfg)
			if got := KeyOf(err); got != tt.want {
				t.Errorf("KeyOf(%v) = %q, want %q", err, got, tt.want)
			}
		})
	}
}

func TestValidateUntrustedCertificate(t *testing.T) {
	srv := newTestServer(t, 0)

	v := NewIMAPValidator(Options{Timeout: 5 * time.Second})
	_, err := v.Validate(context.Background(), srv.config())
	if got := KeyOf(err); got != KeySSLError {
		t.Errorf("KeyOf(%v) = %q, want %q", err, got, KeySSLError)
	}
}

func TestValidateModernAgainstTLS12Server(t *testing.T) {
	srv := newTestServer(t, tls.VersionTLS12)

	cfg := srv.config()
	cfg.SSLCipherList = model.SSLCipherModern

	_, err := srv.validator().Validate(context.Background(), cfg)
	if got := KeyOf(err); got != KeySSLError {
		t.Errorf("KeyOf(%v) = %q, want %q", err, got, KeySSLError)
	}
}

func TestValidateCannotConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	cfg := model.ConnectionConfig{
		Username:      testUser,
		Password:      testPassword,
		Server:        "127.0.0.1",
		Port:          port,
		Charset:       "utf-8",
		Folder:        "INBOX",
		Search:        "ALL",
		SSLCipherList: model.SSLCipherPythonDefault,
	}

	v := NewIMAPValidator(Options{Timeout: 5 * time.Second})
	_, err = v.Validate(context.Background(), cfg)
	if got := KeyOf(err); got != KeyCannotConnect {
		t.Errorf("KeyOf(%v) = %q, want %q", err, got, KeyCannotConnect)
	}
	if !IsConnectivity(err) {
		t.Error("IsConnectivity = false, want true")
	}
}

func TestValidateUnknownCipherList(t *testing.T) {
	srv := newTestServer(t, 0)

	cfg := srv.config()
	cfg.SSLCipherList = "legacy"

	_, err := srv.validator().Validate(context.Background(), cfg)
	if got := KeyOf(err); got != KeySSLError {
		t.Errorf("KeyOf(%v) = %q, want %q", err, got, KeySSLError)
	}
}
