// Package security loads TLS material for the HTTP API.
package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ServerTLSConfig holds server TLS configuration.
type ServerTLSConfig struct {
	CertFile string // Server certificate file
	KeyFile  string // Server private key file
	// ClientCAFile, when set, requires clients to present a certificate
	// signed by this CA.
	ClientCAFile string
}

// Enabled reports whether a certificate is configured.
func (c *ServerTLSConfig) Enabled() bool {
	return c != nil && (c.CertFile != "" || c.KeyFile != "")
}

// Validate checks that certificate and key are configured together.
func (c *ServerTLSConfig) Validate() error {
	if !c.Enabled() {
		if c != nil && c.ClientCAFile != "" {
			return errors.New("client CA requires a server certificate")
		}
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" {
		return errors.New("certificate and key must be set together")
	}
	return nil
}

// LoadServerTLS builds the TLS configuration for the API listener.
func LoadServerTLS(cfg *ServerTLSConfig) (*tls.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	serverCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.ClientCAFile != "" {
		caCert, err := os.ReadFile(cfg.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("read client CA certificate: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to add client CA certificate")
		}
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = caPool
	}

	return tlsConfig, nil
}
