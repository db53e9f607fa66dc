// Package config loads the proxy's configuration from the process
// environment using viper. The external interface is exactly the
// documented environment variables with no prefix transform, so each
// key is bound individually with viper.BindEnv rather than
// AutomaticEnv + SetEnvKeyReplacer.
package config

import (
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/certproxy/certproxy/internal/core"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatJSON   LogFormat = "json"
	LogFormatPretty LogFormat = "pretty"
)

// Config is the immutable, validated configuration for one proxy
// instance.
type Config struct {
	VaultAddr      string
	AuthMount      string
	AuthRole       string
	PKIMount       string
	PKIRole        string
	Namespace      string // optional
	CACertPath     string // optional, VAULT_CACERT
	CommonName     string
	AltNames       string // optional, comma-separated, forwarded verbatim
	IPSANs         string // optional, comma-separated, forwarded verbatim
	TTL            string
	CertDir        string
	ListenAddr     string
	BackendAddr    string
	RenewThreshold float64
	LogFormat      LogFormat
}

// envKeys lists every environment variable this proxy reads, paired
// with its compiled default ("" means no default) and whether it is
// required.
var envKeys = []struct {
	key     string
	def     string
	require bool
}{
	{"VAULT_ADDR", "", true},
	{"VAULT_AUTH_ROLE", "", true},
	{"VAULT_AUTH_MOUNT", "kubernetes", false},
	{"VAULT_PKI_ROLE", "", true},
	{"VAULT_PKI_MOUNT", "pki", false},
	{"VAULT_NAMESPACE", "", false},
	{"VAULT_CACERT", "", false},
	{"CERT_COMMON_NAME", "", true},
	{"CERT_ALT_NAMES", "", false},
	{"CERT_IP_SANS", "", false},
	{"CERT_TTL", "24h", false},
	{"CERT_DIR", "/certs", false},
	{"LISTEN_ADDR", "0.0.0.0:8443", false},
	{"BACKEND_ADDR", "127.0.0.1:8080", false},
	{"RENEWAL_THRESHOLD", "0.66", false},
	{"LOG_FORMAT", "json", false},
}

// Load reads and validates the full configuration in one pass.
// Absence of a required field, or a threshold outside [0,1), fails
// construction with a *core.DomainError of kind config.
func Load() (*Config, error) {
	v := viper.New()
	for _, e := range envKeys {
		if e.def != "" {
			v.SetDefault(e.key, e.def)
		}
		if err := v.BindEnv(e.key); err != nil {
			return nil, core.NewConfigError("bind env "+e.key, err)
		}
	}

	for _, e := range envKeys {
		if e.require && strings.TrimSpace(v.GetString(e.key)) == "" {
			return nil, core.NewConfigError("required environment variable "+e.key+" is not set", nil)
		}
	}

	threshold, err := strconv.ParseFloat(v.GetString("RENEWAL_THRESHOLD"), 64)
	if err != nil {
		return nil, core.NewConfigError("invalid RENEWAL_THRESHOLD", err)
	}
	if threshold < 0 || threshold >= 1 {
		return nil, core.NewConfigError("RENEWAL_THRESHOLD must be in [0,1), got "+v.GetString("RENEWAL_THRESHOLD"), nil)
	}

	format := LogFormat(strings.ToLower(v.GetString("LOG_FORMAT")))
	if format != LogFormatJSON && format != LogFormatPretty {
		return nil, core.NewConfigError("LOG_FORMAT must be 'json' or 'pretty', got "+v.GetString("LOG_FORMAT"), nil)
	}

	ipSANs := v.GetString("CERT_IP_SANS")
	if ipSANs != "" {
		for _, ip := range strings.Split(ipSANs, ",") {
			ip = strings.TrimSpace(ip)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) == nil {
				return nil, core.NewConfigError("CERT_IP_SANS contains an invalid IP address: "+ip, nil)
			}
		}
	}

	return &Config{
		VaultAddr:      v.GetString("VAULT_ADDR"),
		AuthMount:      v.GetString("VAULT_AUTH_MOUNT"),
		AuthRole:       v.GetString("VAULT_AUTH_ROLE"),
		PKIMount:       v.GetString("VAULT_PKI_MOUNT"),
		PKIRole:        v.GetString("VAULT_PKI_ROLE"),
		Namespace:      v.GetString("VAULT_NAMESPACE"),
		CACertPath:     v.GetString("VAULT_CACERT"),
		CommonName:     v.GetString("CERT_COMMON_NAME"),
		AltNames:       v.GetString("CERT_ALT_NAMES"),
		IPSANs:         ipSANs,
		TTL:            v.GetString("CERT_TTL"),
		CertDir:        v.GetString("CERT_DIR"),
		ListenAddr:     v.GetString("LISTEN_ADDR"),
		BackendAddr:    v.GetString("BACKEND_ADDR"),
		RenewThreshold: threshold,
		LogFormat:      format,
	}, nil
}
