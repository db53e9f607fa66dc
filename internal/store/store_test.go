package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/certproxy/certproxy/internal/core"
)

func TestStore_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs") // directory does not exist yet

	s := New(dir)
	bundle := core.Bundle{
		CertificateChainPEM: "LEAF\nISSUER",
		PrivateKeyPEM:       "KEY",
		IssuerCAPEM:         "ISSUER",
		LeaseDurationSecs:   3600,
	}

	if err := s.Write(bundle); err != nil {
		t.Fatalf("Write: %v", err)
	}

	cases := map[string]string{
		"tls.crt": "LEAF\nISSUER",
		"tls.key": "KEY",
		"ca.crt":  "ISSUER",
	}
	for name, want := range cases {
		got, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	// No leftover .tmp files.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected exactly 3 files in %s, got %d", dir, len(entries))
	}
}

func TestStore_WriteOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	first := core.Bundle{CertificateChainPEM: "A", PrivateKeyPEM: "A", IssuerCAPEM: "A"}
	second := core.Bundle{CertificateChainPEM: "B", PrivateKeyPEM: "B", IssuerCAPEM: "B"}

	if err := s.Write(first); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	if err := s.Write(second); err != nil {
		t.Fatalf("Write second: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "tls.crt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "B" {
		t.Errorf("tls.crt = %q, want B (overwritten)", got)
	}
}
