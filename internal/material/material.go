// Package material builds the parsed TLS material value: an opaque,
// immutable handle wrapping a ready-to-use server TLS configuration,
// produced from a Bundle and shared by reference among many
// concurrent connection handlers.
package material

import (
	"crypto/tls"

	"github.com/certproxy/certproxy/internal/core"
)

// Material is the parsed, ready-to-use server TLS configuration: a
// single certificate, no client authentication.
type Material struct {
	Config *tls.Config
}

// Parse builds Material from a Bundle's PEM chain and private key. A
// parse failure must not be fatal outside of startup — callers decide
// whether to publish the result.
func Parse(bundle core.Bundle) (Material, error) {
	cert, err := tls.X509KeyPair([]byte(bundle.CertificateChainPEM), []byte(bundle.PrivateKeyPEM))
	if err != nil {
		return Material{}, core.NewTLSError("parse certificate/key pair", err)
	}

	return Material{
		Config: &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientAuth:   tls.NoClientCert,
		},
	}, nil
}
