package githubapp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/ealebed/gh-backport-command/internal/config"
)

// mkPEM returns a valid RSA private key in PKCS#1 PEM.
func mkPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024) // small & fast for tests
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func TestNewClients_TokenMode(t *testing.T) {
	cfg := &config.Config{APIURL: config.DefaultAPIURL, Token: "ghs_abc"}
	cli, err := NewClients(context.Background(), cfg, 0)
	if err != nil {
		t.Fatalf("NewClients error = %v", err)
	}
	if cli.REST == nil || cli.HTTP == nil {
		t.Fatalf("expected non-nil clients, got %+v", cli)
	}
	if cli.Token != "ghs_abc" {
		t.Fatalf("Token = %q", cli.Token)
	}
	if got := cli.REST.BaseURL.String(); got != "https://api.github.com/" {
		t.Fatalf("BaseURL = %q", got)
	}
	// No network calls happen here; we just ensure construction works.
}

func TestNewClients_Enterprise(t *testing.T) {
	cfg := &config.Config{APIURL: "https://ghe.example.com/api/v3", Token: "x"}
	cli, err := NewClients(context.Background(), cfg, 0)
	if err != nil {
		t.Fatalf("NewClients error = %v", err)
	}
	if got := cli.REST.BaseURL.String(); got != "https://ghe.example.com/api/v3/" {
		t.Fatalf("BaseURL = %q", got)
	}
}

func TestNewClients_AppModeNeedsInstallation(t *testing.T) {
	cfg := &config.Config{APIURL: config.DefaultAPIURL, AppID: 12345, PrivateKeyPEM: mkPEM(t)}
	if _, err := NewClients(context.Background(), cfg, 0); err == nil {
		t.Fatalf("expected error without installation id")
	}
}

func TestNewInstallationTransport(t *testing.T) {
	cfg := &config.Config{APIURL: config.DefaultAPIURL, AppID: 12345, PrivateKeyPEM: []byte("not-a-private-key")}
	if _, err := newInstallationTransport(cfg, 67890); err == nil {
		t.Fatalf("expected error for invalid PEM")
	}

	cfg.PrivateKeyPEM = mkPEM(t)
	cfg.APIURL = "https://ghe.example.com/api/v3"
	itr, err := newInstallationTransport(cfg, 67890)
	if err != nil {
		t.Fatalf("newInstallationTransport error = %v", err)
	}
	if itr.BaseURL != "https://ghe.example.com/api/v3" {
		t.Fatalf("BaseURL = %q", itr.BaseURL)
	}
}
