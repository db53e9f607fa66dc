package pki

import (
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"
)

func TestNewFixtureCAFromSeed_Deterministic(t *testing.T) {
	ca1, err := NewFixtureCAFromSeed("seed-a")
	if err != nil {
		t.Fatalf("NewFixtureCAFromSeed: %v", err)
	}
	ca2, err := NewFixtureCAFromSeed("seed-a")
	if err != nil {
		t.Fatalf("NewFixtureCAFromSeed: %v", err)
	}

	if string(ca1.CertPEM()) != string(ca2.CertPEM()) {
		t.Error("expected identical CA cert PEM for the same seed")
	}

	ca3, err := NewFixtureCAFromSeed("seed-b")
	if err != nil {
		t.Fatalf("NewFixtureCAFromSeed: %v", err)
	}
	if string(ca1.CertPEM()) == string(ca3.CertPEM()) {
		t.Error("expected different CA cert PEM for different seeds")
	}
}

func TestFixtureCA_IssueLeaf(t *testing.T) {
	ca, err := NewFixtureCAFromSeed("seed")
	if err != nil {
		t.Fatalf("NewFixtureCAFromSeed: %v", err)
	}

	certPEM, keyPEM, err := ca.IssueLeaf("svc.example.com", []string{"alt.example.com"}, []string{"10.0.0.1"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueLeaf: %v", err)
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		t.Fatal("expected non-empty cert and key PEM")
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		t.Fatal("failed to decode leaf cert PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse leaf cert: %v", err)
	}
	if cert.Subject.CommonName != "svc.example.com" {
		t.Errorf("expected CN=svc.example.com, got %s", cert.Subject.CommonName)
	}
	if len(cert.DNSNames) != 1 || cert.DNSNames[0] != "alt.example.com" {
		t.Errorf("expected DNSNames=[alt.example.com], got %v", cert.DNSNames)
	}
	if len(cert.IPAddresses) != 1 || cert.IPAddresses[0].String() != "10.0.0.1" {
		t.Errorf("expected IPAddresses=[10.0.0.1], got %v", cert.IPAddresses)
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca.cert)
	if _, err := cert.Verify(x509.VerifyOptions{Roots: roots, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}}); err != nil {
		t.Errorf("leaf cert did not verify against fixture CA: %v", err)
	}
}
