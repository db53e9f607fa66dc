package core

import "strings"

// Bundle is the certificate bundle returned by one successful
// issuance: the leaf-plus-issuer PEM chain, the PEM private key, the
// PEM issuer CA alone, and the lease duration in seconds. It is never
// mutated after construction.
type Bundle struct {
	CertificateChainPEM string // leaf + "\n" + issuer
	PrivateKeyPEM       string
	IssuerCAPEM         string
	LeaseDurationSecs   int64
}

// BuildChain assembles the leaf-plus-issuer chain: trim(leaf) + "\n"
// + trim(issuer), bytewise. Inverting the order yields an invalid
// chain most TLS clients reject silently.
func BuildChain(leafPEM, issuerPEM string) string {
	return strings.TrimSpace(leafPEM) + "\n" + strings.TrimSpace(issuerPEM)
}
