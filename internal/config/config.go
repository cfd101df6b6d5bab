// Package config provides configuration loading and validation.
package config

// Config holds the gateway configuration.
type Config struct {
	// Mode is the operating mode: prod or dev.
	Mode string `json:"mode"`

	// ListenAddr is the address to listen on.
	// Example: ":8080"
	ListenAddr string `json:"listen_addr"`

	// ExternalOrigin is the public origin (scheme + host + port) for this
	// instance. Used for TLS certificate hostnames and startup logging.
	ExternalOrigin string `json:"external_origin"`

	Server       ServerConfig       `json:"server"`
	TLS          TLSConfig          `json:"tls"`
	Auth         AuthConfig         `json:"auth"`
	Directory    DirectoryConfig    `json:"directory"`
	OutboundHTTP OutboundHTTPConfig `json:"outbound_http"`
	Logging      LoggingConfig      `json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// TrustedProxies is a list of CIDRs whose X-Forwarded-For is honored.
	TrustedProxies []string `json:"trusted_proxies"`

	// MaxConns caps concurrent accepted connections. 0 means unlimited.
	MaxConns int `json:"max_conns"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned, acme
	Mode string `json:"mode"`

	// CertFile and KeyFile for static mode
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`

	// HTTPPort for the plain HTTP listener (ACME challenges and redirects)
	HTTPPort int `json:"http_port"`

	// HTTPSPort for the HTTPS listener
	HTTPSPort int `json:"https_port"`

	// SelfSignedDir is where generated certificates are stored
	SelfSignedDir string `json:"self_signed_dir"`

	ACME ACMEConfig `json:"acme"`
}

// ACMEConfig holds ACME certificate settings.
type ACMEConfig struct {
	Email      string `json:"email"`
	Domain     string `json:"domain"`
	Directory  string `json:"directory"`
	StorageDir string `json:"storage_dir"`
	UseStaging bool   `json:"use_staging"`
}

// AuthConfig holds inbound caller authentication settings.
type AuthConfig struct {
	// Mode is one of: key, off.
	Mode string `json:"mode"`

	// KeyHashes are bcrypt hashes of accepted function keys.
	KeyHashes []string `json:"key_hashes"`
}

// DirectoryConfig holds settings for the remote directory service.
type DirectoryConfig struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`

	// BaseURL is the directory API root, e.g. "https://graph.microsoft.com/v1.0".
	BaseURL string `json:"base_url"`

	// TokenURL overrides the token endpoint. Empty derives it from TenantID.
	TokenURL string `json:"token_url"`

	// Scope for the client-credential grant.
	Scope string `json:"scope"`

	// InviteRedirectURL is the landing page for accepted invitations.
	InviteRedirectURL string `json:"invite_redirect_url"`

	// SendInviteMessage controls whether the directory emails the invitee.
	SendInviteMessage bool `json:"send_invite_message"`

	// SignInIssuer is the issuer for emailAddress sign-in identities on
	// manually created users, e.g. "contoso.onmicrosoft.com".
	SignInIssuer string `json:"sign_in_issuer"`

	// MemberFetchConcurrency bounds concurrent per-member lookups during
	// group membership listing.
	MemberFetchConcurrency int `json:"member_fetch_concurrency"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off
	SSRFMode string `json:"ssrf_mode"`

	// TimeoutMS is the overall request timeout in milliseconds
	TimeoutMS int `json:"timeout_ms"`

	// ConnectTimeoutMS is the connection timeout in milliseconds
	ConnectTimeoutMS int `json:"connect_timeout_ms"`

	// MaxRedirects is the maximum number of redirects to follow
	MaxRedirects int `json:"max_redirects"`

	// MaxResponseBytes is the maximum response body size
	MaxResponseBytes int64 `json:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (dev-only)
	InsecureSkipVerify bool `json:"insecure_skip_verify"`

	// CAFile and CADir supply extra root CAs for outbound TLS.
	CAFile string `json:"ca_file"`
	CADir  string `json:"ca_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `json:"level"`
}

// Redacted returns a copy of cfg safe for logging: secrets are masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Directory.ClientSecret != "" {
		out.Directory.ClientSecret = "[REDACTED]"
	}
	if len(out.Auth.KeyHashes) > 0 {
		masked := make([]string, len(out.Auth.KeyHashes))
		for i := range masked {
			masked[i] = "[REDACTED]"
		}
		out.Auth.KeyHashes = masked
	}
	return out
}
