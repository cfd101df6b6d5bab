package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the gateway operating mode.
type Mode string

const (
	ModeProd Mode = "prod"
	ModeDev  Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "":
		return ModeProd, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of prod, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but the file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr            *string
	ExternalOrigin        *string
	TLSMode               *string
	AuthMode              *string
	DirectoryTenantID     *string
	DirectoryClientID     *string
	DirectoryClientSecret *string
	DirectoryBaseURL      *string
	LoggingLevel          *string
}

// fileConfig mirrors Config with toml-tagged pointer sections so a section's
// absence is distinguishable from a section of zero values. Bools that have
// non-zero preset defaults are pointers for the same reason.
type fileConfig struct {
	Mode           string `toml:"mode"`
	ListenAddr     string `toml:"listen_addr"`
	ExternalOrigin string `toml:"external_origin"`

	Server       *serverConfig       `toml:"server"`
	TLS          *tlsConfig          `toml:"tls"`
	Auth         *authConfig         `toml:"auth"`
	Directory    *directoryConfig    `toml:"directory"`
	OutboundHTTP *outboundHTTPConfig `toml:"outbound_http"`
	Logging      *loggingConfig      `toml:"logging"`
}

type serverConfig struct {
	TrustedProxies []string `toml:"trusted_proxies"`
	MaxConns       int      `toml:"max_conns"`
}

type tlsConfig struct {
	Mode          string      `toml:"mode"`
	CertFile      string      `toml:"cert_file"`
	KeyFile       string      `toml:"key_file"`
	HTTPPort      int         `toml:"http_port"`
	HTTPSPort     int         `toml:"https_port"`
	SelfSignedDir string      `toml:"self_signed_dir"`
	ACME          *acmeConfig `toml:"acme"`
}

type acmeConfig struct {
	Email      string `toml:"email"`
	Domain     string `toml:"domain"`
	Directory  string `toml:"directory"`
	StorageDir string `toml:"storage_dir"`
	UseStaging *bool  `toml:"use_staging"`
}

type authConfig struct {
	Mode      string   `toml:"mode"`
	KeyHashes []string `toml:"key_hashes"`
}

type outboundHTTPConfig struct {
	SSRFMode           string `toml:"ssrf_mode"`
	TimeoutMS          int    `toml:"timeout_ms"`
	ConnectTimeoutMS   int    `toml:"connect_timeout_ms"`
	MaxRedirects       int    `toml:"max_redirects"`
	MaxResponseBytes   int64  `toml:"max_response_bytes"`
	InsecureSkipVerify *bool  `toml:"insecure_skip_verify"`
	CAFile             string `toml:"ca_file"`
	CADir              string `toml:"ca_dir"`
}

type loggingConfig struct {
	Level string `toml:"level"`
}

type directoryConfig struct {
	TenantID               string `toml:"tenant_id"`
	ClientID               string `toml:"client_id"`
	ClientSecret           string `toml:"client_secret"`
	BaseURL                string `toml:"base_url"`
	TokenURL               string `toml:"token_url"`
	Scope                  string `toml:"scope"`
	InviteRedirectURL      string `toml:"invite_redirect_url"`
	SendInviteMessage      *bool  `toml:"send_invite_message"`
	SignInIssuer           string `toml:"sign_in_issuer"`
	MemberFetchConcurrency int    `toml:"member_fetch_concurrency"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (prod)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate enum fields
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid
// TOML, Load returns an error (fail fast). Unknown/undecoded TOML keys produce
// a warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "prod"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// presetForMode returns the base config for a given mode.
func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return ProdConfig()
}

// ProdConfig returns production-safe defaults.
func ProdConfig() *Config {
	return &Config{
		Mode:           string(ModeProd),
		ListenAddr:     ":8443",
		ExternalOrigin: "https://localhost:8443",
		Server: ServerConfig{
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
		},
		TLS: TLSConfig{
			Mode:          "selfsigned",
			HTTPPort:      8080,
			HTTPSPort:     8443,
			SelfSignedDir: ".usergate/certs",
			ACME: ACMEConfig{
				Directory:  "https://acme-v02.api.letsencrypt.org/directory",
				StorageDir: ".usergate/acme",
				UseStaging: false,
			},
		},
		Auth: AuthConfig{
			Mode: "key",
		},
		Directory: DirectoryConfig{
			BaseURL:                "https://graph.microsoft.com/v1.0",
			Scope:                  "https://graph.microsoft.com/.default",
			SendInviteMessage:      true,
			MemberFetchConcurrency: 4,
		},
		OutboundHTTP: OutboundHTTPConfig{
			SSRFMode:           "strict",
			TimeoutMS:          10000,
			ConnectTimeoutMS:   2000,
			MaxRedirects:       1,
			MaxResponseBytes:   4194304,
			InsecureSkipVerify: false,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DevConfig returns development mode defaults.
func DevConfig() *Config {
	cfg := ProdConfig()
	cfg.Mode = string(ModeDev)
	cfg.ListenAddr = ":8080"
	cfg.ExternalOrigin = "http://localhost:8080"
	cfg.TLS.Mode = "off"
	cfg.Auth.Mode = "off"
	cfg.OutboundHTTP.SSRFMode = "off"
	cfg.OutboundHTTP.MaxRedirects = 3
	cfg.OutboundHTTP.InsecureSkipVerify = true
	cfg.Logging.Level = "debug"
	return cfg
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.ExternalOrigin != "" {
		cfg.ExternalOrigin = fc.ExternalOrigin
	}

	if fc.Server != nil {
		if len(fc.Server.TrustedProxies) > 0 {
			cfg.Server.TrustedProxies = fc.Server.TrustedProxies
		}
		if fc.Server.MaxConns > 0 {
			cfg.Server.MaxConns = fc.Server.MaxConns
		}
	}

	if fc.TLS != nil {
		if fc.TLS.Mode != "" {
			cfg.TLS.Mode = fc.TLS.Mode
		}
		if fc.TLS.CertFile != "" {
			cfg.TLS.CertFile = fc.TLS.CertFile
		}
		if fc.TLS.KeyFile != "" {
			cfg.TLS.KeyFile = fc.TLS.KeyFile
		}
		if fc.TLS.HTTPPort != 0 {
			cfg.TLS.HTTPPort = fc.TLS.HTTPPort
		}
		if fc.TLS.HTTPSPort != 0 {
			cfg.TLS.HTTPSPort = fc.TLS.HTTPSPort
		}
		if fc.TLS.SelfSignedDir != "" {
			cfg.TLS.SelfSignedDir = fc.TLS.SelfSignedDir
		}
		if fc.TLS.ACME != nil {
			if fc.TLS.ACME.Email != "" {
				cfg.TLS.ACME.Email = fc.TLS.ACME.Email
			}
			if fc.TLS.ACME.Domain != "" {
				cfg.TLS.ACME.Domain = fc.TLS.ACME.Domain
			}
			if fc.TLS.ACME.Directory != "" {
				cfg.TLS.ACME.Directory = fc.TLS.ACME.Directory
			}
			if fc.TLS.ACME.StorageDir != "" {
				cfg.TLS.ACME.StorageDir = fc.TLS.ACME.StorageDir
			}
			if fc.TLS.ACME.UseStaging != nil {
				cfg.TLS.ACME.UseStaging = *fc.TLS.ACME.UseStaging
			}
		}
	}

	if fc.Auth != nil {
		if fc.Auth.Mode != "" {
			cfg.Auth.Mode = fc.Auth.Mode
		}
		if len(fc.Auth.KeyHashes) > 0 {
			cfg.Auth.KeyHashes = fc.Auth.KeyHashes
		}
	}

	if fc.Directory != nil {
		if fc.Directory.TenantID != "" {
			cfg.Directory.TenantID = fc.Directory.TenantID
		}
		if fc.Directory.ClientID != "" {
			cfg.Directory.ClientID = fc.Directory.ClientID
		}
		if fc.Directory.ClientSecret != "" {
			cfg.Directory.ClientSecret = fc.Directory.ClientSecret
		}
		if fc.Directory.BaseURL != "" {
			cfg.Directory.BaseURL = fc.Directory.BaseURL
		}
		if fc.Directory.TokenURL != "" {
			cfg.Directory.TokenURL = fc.Directory.TokenURL
		}
		if fc.Directory.Scope != "" {
			cfg.Directory.Scope = fc.Directory.Scope
		}
		if fc.Directory.InviteRedirectURL != "" {
			cfg.Directory.InviteRedirectURL = fc.Directory.InviteRedirectURL
		}
		if fc.Directory.SendInviteMessage != nil {
			cfg.Directory.SendInviteMessage = *fc.Directory.SendInviteMessage
		}
		if fc.Directory.SignInIssuer != "" {
			cfg.Directory.SignInIssuer = fc.Directory.SignInIssuer
		}
		if fc.Directory.MemberFetchConcurrency > 0 {
			cfg.Directory.MemberFetchConcurrency = fc.Directory.MemberFetchConcurrency
		}
	}

	if fc.OutboundHTTP != nil {
		if fc.OutboundHTTP.SSRFMode != "" {
			cfg.OutboundHTTP.SSRFMode = fc.OutboundHTTP.SSRFMode
		}
		if fc.OutboundHTTP.TimeoutMS != 0 {
			cfg.OutboundHTTP.TimeoutMS = fc.OutboundHTTP.TimeoutMS
		}
		if fc.OutboundHTTP.ConnectTimeoutMS != 0 {
			cfg.OutboundHTTP.ConnectTimeoutMS = fc.OutboundHTTP.ConnectTimeoutMS
		}
		if fc.OutboundHTTP.MaxRedirects != 0 {
			cfg.OutboundHTTP.MaxRedirects = fc.OutboundHTTP.MaxRedirects
		}
		if fc.OutboundHTTP.MaxResponseBytes != 0 {
			cfg.OutboundHTTP.MaxResponseBytes = fc.OutboundHTTP.MaxResponseBytes
		}
		if fc.OutboundHTTP.CAFile != "" {
			cfg.OutboundHTTP.CAFile = fc.OutboundHTTP.CAFile
		}
		if fc.OutboundHTTP.CADir != "" {
			cfg.OutboundHTTP.CADir = fc.OutboundHTTP.CADir
		}
		if fc.OutboundHTTP.InsecureSkipVerify != nil {
			cfg.OutboundHTTP.InsecureSkipVerify = *fc.OutboundHTTP.InsecureSkipVerify
		}
	}

	if fc.Logging != nil && fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.ExternalOrigin != nil && *f.ExternalOrigin != "" {
		cfg.ExternalOrigin = *f.ExternalOrigin
	}
	if f.TLSMode != nil && *f.TLSMode != "" {
		cfg.TLS.Mode = *f.TLSMode
	}
	if f.AuthMode != nil && *f.AuthMode != "" {
		cfg.Auth.Mode = *f.AuthMode
	}
	if f.DirectoryTenantID != nil && *f.DirectoryTenantID != "" {
		cfg.Directory.TenantID = *f.DirectoryTenantID
	}
	if f.DirectoryClientID != nil && *f.DirectoryClientID != "" {
		cfg.Directory.ClientID = *f.DirectoryClientID
	}
	if f.DirectoryClientSecret != nil && *f.DirectoryClientSecret != "" {
		cfg.Directory.ClientSecret = *f.DirectoryClientSecret
	}
	if f.DirectoryBaseURL != nil && *f.DirectoryBaseURL != "" {
		cfg.Directory.BaseURL = *f.DirectoryBaseURL
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
}

// validate checks enum-like config fields and cross-field constraints.
func validate(cfg *Config) error {
	switch cfg.TLS.Mode {
	case "off", "static", "selfsigned", "acme":
	default:
		return fmt.Errorf("invalid tls.mode %q: must be one of off, static, selfsigned, acme", cfg.TLS.Mode)
	}

	switch cfg.Auth.Mode {
	case "key", "off":
	default:
		return fmt.Errorf("invalid auth.mode %q: must be one of key, off", cfg.Auth.Mode)
	}

	if cfg.Auth.Mode == "key" && len(cfg.Auth.KeyHashes) == 0 {
		return fmt.Errorf("auth.key_hashes must be non-empty when auth.mode is key")
	}

	switch cfg.OutboundHTTP.SSRFMode {
	case "strict", "off":
	default:
		return fmt.Errorf("invalid outbound_http.ssrf_mode %q: must be one of strict, off", cfg.OutboundHTTP.SSRFMode)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of debug, info, warn, error", cfg.Logging.Level)
	}

	if cfg.Directory.MemberFetchConcurrency < 1 {
		return fmt.Errorf("directory.member_fetch_concurrency must be at least 1")
	}

	return nil
}
