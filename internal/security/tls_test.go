package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSigned writes a self-signed certificate and key to dir.
func writeSelfSigned(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile = filepath.Join(dir, "server.crt")
	keyFile = filepath.Join(dir, "server.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestServerTLSConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *ServerTLSConfig
		enabled bool
		wantErr bool
	}{
		{name: "nil", cfg: nil},
		{name: "empty", cfg: &ServerTLSConfig{}},
		{name: "cert and key", cfg: &ServerTLSConfig{CertFile: "a", KeyFile: "b"}, enabled: true},
		{name: "cert only", cfg: &ServerTLSConfig{CertFile: "a"}, enabled: true, wantErr: true},
		{name: "client CA without cert", cfg: &ServerTLSConfig{ClientCAFile: "ca"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Enabled(); got != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", got, tt.enabled)
			}
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadServerTLS(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir)

	cfg, err := LoadServerTLS(&ServerTLSConfig{CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		t.Fatalf("LoadServerTLS() error = %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("len(Certificates) = %d, want 1", len(cfg.Certificates))
	}
	if cfg.ClientAuth != tls.NoClientCert {
		t.Errorf("ClientAuth = %v, want NoClientCert", cfg.ClientAuth)
	}

	mtls, err := LoadServerTLS(&ServerTLSConfig{CertFile: certFile, KeyFile: keyFile, ClientCAFile: certFile})
	if err != nil {
		t.Fatalf("LoadServerTLS() with client CA error = %v", err)
	}
	if mtls.ClientAuth != tls.RequireAndVerifyClientCert || mtls.ClientCAs == nil {
		t.Error("client CA did not enable client certificate verification")
	}
}

func TestLoadServerTLS_Errors(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir)
	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  *ServerTLSConfig
	}{
		{name: "missing key", cfg: &ServerTLSConfig{CertFile: certFile, KeyFile: filepath.Join(dir, "absent.key")}},
		{name: "missing client CA", cfg: &ServerTLSConfig{CertFile: certFile, KeyFile: keyFile, ClientCAFile: filepath.Join(dir, "absent.pem")}},
		{name: "invalid client CA", cfg: &ServerTLSConfig{CertFile: certFile, KeyFile: keyFile, ClientCAFile: garbage}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadServerTLS(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
