// Package authority logs in and requests certificates from a remote
// Vault-like secrets service over HTTP: a bare *http.Client issuing
// two JSON request/response round trips, plus a reader/writer-biased
// session token shared across renewal attempts.
package authority

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/certproxy/certproxy/internal/core"
)

// Client holds the base URL, optional tenant namespace, a trust
// anchor for the authority's own TLS, and a mutable session token.
type Client struct {
	baseURL   string
	namespace string
	http      *http.Client

	mu    sync.RWMutex
	token string // "" means no successful login yet
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithNamespace sets the tenant namespace header value sent with
// every request.
func WithNamespace(ns string) Option {
	return func(c *Client) { c.namespace = ns }
}

// WithTrustAnchor loads a PEM trust anchor file and uses it (instead
// of the system root pool) to verify the authority's own TLS
// certificate.
func WithTrustAnchor(path string) Option {
	return func(c *Client) {
		if path == "" {
			return
		}
		pem, err := os.ReadFile(path)
		if err != nil {
			return
		}
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM(pem) {
			c.http.Transport = &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}
		}
	}
}

// New builds a Client for baseURL (trailing slash stripped). No
// global request timeout is imposed beyond the transport's own
// dial/handshake defaults.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current session token. Empty means no successful
// login has happened yet.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

type loginRequest struct {
	Role string `json:"role"`
	JWT  string `json:"jwt"`
}

type loginResponse struct {
	Auth struct {
		ClientToken   string `json:"client_token"`
		LeaseDuration int64  `json:"lease_duration"`
	} `json:"auth"`
}

// Login POSTs {role, jwt} to {base}/v1/auth/{authMount}/login. On
// success, auth.client_token replaces the session token wholesale
// (there is no refresh semantic) and auth.lease_duration is
// returned.
func (c *Client) Login(authMount, role, workloadToken string) (leaseSecs int64, err error) {
	url := fmt.Sprintf("%s/v1/auth/%s/login", c.baseURL, authMount)

	body, err := json.Marshal(loginRequest{Role: role, JWT: strings.TrimSpace(workloadToken)})
	if err != nil {
		return 0, core.NewAuthError("encode login request", 0, "", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, core.NewTransportError("build login request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.namespace != "" {
		req.Header.Set("X-Vault-Namespace", c.namespace)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, core.NewTransportError("login request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, core.NewAuthError("login returned non-2xx status", resp.StatusCode, string(respBody), nil)
	}

	var parsed loginResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return 0, core.NewAuthError("decode login response", resp.StatusCode, string(respBody), err)
	}

	c.setToken(parsed.Auth.ClientToken)
	return parsed.Auth.LeaseDuration, nil
}

type issueRequest struct {
	CommonName string `json:"common_name"`
	TTL        string `json:"ttl"`
	AltNames   string `json:"alt_names,omitempty"`
	IPSANs     string `json:"ip_sans,omitempty"`
}

type issueResponse struct {
	Data struct {
		Certificate string `json:"certificate"`
		IssuingCA   string `json:"issuing_ca"`
		PrivateKey  string `json:"private_key"`
	} `json:"data"`
	LeaseDuration int64 `json:"lease_duration"`
}

// Issue POSTs a certificate request to
// {base}/v1/{pkiMount}/issue/{pkiRole} with the current session token
// in the X-Vault-Token header, and returns the resulting Bundle with
// the leaf+issuer chain already assembled.
func (c *Client) Issue(pkiMount, pkiRole, cn, altNames, ipSANs, ttl string) (core.Bundle, error) {
	url := fmt.Sprintf("%s/v1/%s/issue/%s", c.baseURL, pkiMount, pkiRole)

	reqBody := issueRequest{CommonName: cn, TTL: ttl, AltNames: altNames, IPSANs: ipSANs}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return core.Bundle{}, core.NewPKIError("encode issue request", 0, "", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return core.Bundle{}, core.NewTransportError("build issue request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vault-Token", c.Token())
	if c.namespace != "" {
		req.Header.Set("X-Vault-Namespace", c.namespace)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.Bundle{}, core.NewTransportError("issue request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.Bundle{}, core.NewPKIError("issue returned non-2xx status", resp.StatusCode, string(respBody), nil)
	}

	var parsed issueResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return core.Bundle{}, core.NewPKIError("decode issue response", resp.StatusCode, string(respBody), err)
	}

	return core.Bundle{
		CertificateChainPEM: core.BuildChain(parsed.Data.Certificate, parsed.Data.IssuingCA),
		PrivateKeyPEM:       parsed.Data.PrivateKey,
		IssuerCAPEM:         strings.TrimSpace(parsed.Data.IssuingCA),
		LeaseDurationSecs:   parsed.LeaseDuration,
	}, nil
}

// defaultWorkloadTokenPath is the path the orchestrator mounts the
// signed workload identity token at.
const defaultWorkloadTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// ReadWorkloadToken reads and trims the workload identity token from
// the standard projected-volume path. Absence is a fatal
// authentication error.
func ReadWorkloadToken() (string, error) {
	return readWorkloadTokenFrom(defaultWorkloadTokenPath)
}

func readWorkloadTokenFrom(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", core.NewAuthError("failed to read workload identity token from "+path, 0, "", err)
	}
	return strings.TrimSpace(string(b)), nil
}
