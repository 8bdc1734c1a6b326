package validator

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/nhle/mailflow/internal/model"
)

// intermediateCipherSuites mirrors the Mozilla "intermediate" profile
// for TLS 1.2. TLS 1.3 suites are not configurable in crypto/tls.
var intermediateCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
}

// TLSConfig builds the client TLS configuration for a cipher list.
// roots may be nil to use the system pool.
func TLSConfig(
	list model.SSLCipherList, serverName string, roots *x509.CertPool,
) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: serverName,
		RootCAs:    roots,
		MinVersion: tls.VersionTLS12,
	}

	switch list {
	case model.SSLCipherPythonDefault, "":
	case model.SSLCipherIntermediate:
		cfg.CipherSuites = intermediateCipherSuites
	case model.SSLCipherModern:
		cfg.MinVersion = tls.VersionTLS13
	default:
		return nil, fmt.Errorf("unknown ssl cipher list %q", list)
	}

	return cfg, nil
}
