// Package pki is a test-fixture signing authority: a minimal
// self-signed CA that stands in for the remote PKI backend in tests.
// The proxy itself never generates or signs certificates locally; this
// package exists purely so tests can deterministically simulate a
// remote issuer's responses.
package pki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"

	"golang.org/x/crypto/hkdf"
)

// FixtureCA is a self-signed signing authority used only by tests
// that simulate the remote PKI backend's issue endpoint.
type FixtureCA struct {
	cert    *x509.Certificate
	key     *ecdsa.PrivateKey
	certPEM []byte
}

// NewFixtureCAFromSeed deterministically derives a CA key and
// self-signed certificate from seed, so repeated test runs produce
// byte-identical fixtures.
func NewFixtureCAFromSeed(seed string) (*FixtureCA, error) {
	key, err := deriveKey(seed, "fixture-ca")
	if err != nil {
		return nil, fmt.Errorf("pki: derive fixture CA key: %w", err)
	}

	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tmpl := &x509.Certificate{
		SerialNumber:          deriveSerial(seed, "fixture-ca-serial"),
		Subject:               pkix.Name{Organization: []string{"certproxy-fixtures"}, CommonName: "fixture-ca"},
		NotBefore:             epoch,
		NotAfter:              epoch.Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	// A nil random source makes the ECDSA signature deterministic
	// (RFC 6979), so the certificate bytes depend only on seed.
	certDER, err := x509.CreateCertificate(nil, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("pki: create fixture CA cert: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("pki: parse fixture CA cert: %w", err)
	}

	return &FixtureCA{
		cert:    cert,
		key:     key,
		certPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
	}, nil
}

// CertPEM returns the PEM-encoded fixture CA certificate (the
// "issuing_ca" a real PKI backend would return).
func (ca *FixtureCA) CertPEM() []byte {
	return ca.certPEM
}

// IssueLeaf generates a fresh ECDSA P-256 leaf certificate for cn,
// signed by the fixture CA, valid for ttl. It returns the leaf
// certificate PEM and its private key PEM, mirroring the shape of a
// real PKI backend's {certificate, private_key} response fields.
func (ca *FixtureCA) IssueLeaf(cn string, altNames, ipSANs []string, ttl time.Duration) (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("pki: generate leaf key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("pki: generate serial: %w", err)
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(ttl),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     altNames,
	}
	for _, ip := range ipSANs {
		if parsed := net.ParseIP(ip); parsed != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, parsed)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		return nil, nil, fmt.Errorf("pki: sign leaf cert: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("pki: marshal leaf key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// deterministicReader returns an io.Reader that always yields the same
// byte stream for a given (seed, label) pair, used in place of
// crypto/rand wherever a fixture needs to be reproducible across runs.
func deterministicReader(seed, label string) io.Reader {
	return hkdf.New(sha256.New, []byte(seed), nil, []byte(label))
}

// deriveKey builds the P-256 private scalar directly from the HKDF
// stream; ecdsa.GenerateKey does not produce a reproducible key from a
// custom reader.
func deriveKey(seed, label string) (*ecdsa.PrivateKey, error) {
	r := deterministicReader(seed, label)
	buf := make([]byte, 32)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		if key, err := ecdsa.ParseRawPrivateKey(elliptic.P256(), buf); err == nil {
			return key, nil
		}
	}
}

func deriveSerial(seed, label string) *big.Int {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(deterministicReader(seed, label), buf); err != nil {
		panic("pki: derive fixture serial: " + err.Error())
	}
	serial := new(big.Int).SetBytes(buf)
	if serial.Sign() == 0 {
		serial.SetInt64(1)
	}
	return serial
}
