package material

import (
	"testing"
	"time"

	"github.com/certproxy/certproxy/internal/core"
	"github.com/certproxy/certproxy/internal/pki"
)

func TestParse_Success(t *testing.T) {
	ca, err := pki.NewFixtureCAFromSeed("material-test")
	if err != nil {
		t.Fatalf("NewFixtureCAFromSeed: %v", err)
	}
	certPEM, keyPEM, err := ca.IssueLeaf("svc.example.com", nil, nil, time.Hour)
	if err != nil {
		t.Fatalf("IssueLeaf: %v", err)
	}

	bundle := core.Bundle{
		CertificateChainPEM: core.BuildChain(string(certPEM), string(ca.CertPEM())),
		PrivateKeyPEM:       string(keyPEM),
		IssuerCAPEM:         string(ca.CertPEM()),
	}

	m, err := Parse(bundle)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Config.Certificates) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(m.Config.Certificates))
	}
	if m.Config.ClientAuth != 0 {
		t.Errorf("expected NoClientCert, got %v", m.Config.ClientAuth)
	}
}

func TestParse_InvalidPEM(t *testing.T) {
	bundle := core.Bundle{CertificateChainPEM: "not pem", PrivateKeyPEM: "not pem either"}
	if _, err := Parse(bundle); err == nil {
		t.Fatal("expected error for invalid PEM")
	}
}
