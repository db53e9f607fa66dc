// Package store persists a certificate Bundle to three files under
// temp-file-then-rename semantics, written in the order cert, key,
// ca.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/certproxy/certproxy/internal/core"
)

// Store writes certificate bundles to a directory as tls.crt,
// tls.key, and ca.crt.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. The directory is created lazily
// on the first Write call.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) certPath() string { return filepath.Join(s.dir, "tls.crt") }
func (s *Store) keyPath() string  { return filepath.Join(s.dir, "tls.key") }
func (s *Store) caPath() string   { return filepath.Join(s.dir, "ca.crt") }

// Write creates the output directory if missing (idempotent) and
// writes the bundle's three PEM files in the order cert, key, ca, each
// via write-to-temp-then-rename on the same filesystem. A concurrent
// reader may briefly observe an old-key/new-cert mismatch between the
// two renames; this is accepted since the proxy itself reads from
// memory, not disk.
func (s *Store) Write(bundle core.Bundle) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return core.NewTransportError("create cert dir", err)
	}

	if err := atomicWriteFile(s.certPath(), bundle.CertificateChainPEM); err != nil {
		return core.NewTransportError("write tls.crt", err)
	}
	if err := atomicWriteFile(s.keyPath(), bundle.PrivateKeyPEM); err != nil {
		return core.NewTransportError("write tls.key", err)
	}
	if err := atomicWriteFile(s.caPath(), bundle.IssuerCAPEM); err != nil {
		return core.NewTransportError("write ca.crt", err)
	}
	return nil
}

// atomicWriteFile writes content to path via a temp file in the same
// directory, then an atomic rename, so that a reader never observes a
// partial write.
func atomicWriteFile(path, content string) error {
	dir := filepath.Dir(path)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file into %s: %w", dir, err)
	}
	return nil
}
