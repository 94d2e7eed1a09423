package ledgergate

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the full client configuration. Start from [DefaultConfig].
type Config struct {
	API        APIConfig        `yaml:"api"`
	Session    SessionConfig    `yaml:"session"`
	Navigation NavigationConfig `yaml:"navigation"`
	Storage    StorageConfig    `yaml:"storage"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig controls how calls reach the remote API.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// LoginEndpoint is the API path Client.Login posts credentials to.
	LoginEndpoint string            `yaml:"login_endpoint"`
	Timeout       time.Duration     `yaml:"timeout"`
	MaxBodyBytes  int64             `yaml:"max_body_bytes"`
	Headers       map[string]string `yaml:"headers"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig names the durable keys and the restore policy.
type SessionConfig struct {
	CredentialKey string `yaml:"credential_key"`
	IdentityKey   string `yaml:"identity_key"`
	// DiscardExpired drops a persisted JWT credential whose exp has passed.
	DiscardExpired bool          `yaml:"discard_expired"`
	ExpiryLeeway   time.Duration `yaml:"expiry_leeway"`
}

/*
====================================
NAVIGATION CONFIG
====================================
*/

// NavigationConfig holds the guard's fixed destinations.
type NavigationConfig struct {
	AppTitle      string `yaml:"app_title"`
	LoginPath     string `yaml:"login_path"`
	HomePath      string `yaml:"home_path"`
	RedirectParam string `yaml:"redirect_param"`
	MaxRedirects  int    `yaml:"max_redirects"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageBackend selects the durable storage used by [OpenStorage].
type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageBadger StorageBackend = "badger"
	StorageRedis  StorageBackend = "redis"
)

// StorageConfig describes the durable session storage.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`
	// BadgerPath is the database directory. Empty runs Badger in memory.
	BadgerPath  string        `yaml:"badger_path"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	RedisTTL    time.Duration `yaml:"redis_ttl"`
}

/*
====================================
AUDIT & METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// DefaultConfig returns the configuration the ledger web frontend runs with.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:       "http://localhost:5000/api",
			LoginEndpoint: "/login",
			Timeout:       15 * time.Second,
			MaxBodyBytes:  8 << 20,
			Headers: map[string]string{
				"Content-Type":     "application/json",
				"X-Requested-With": "XMLHttpRequest",
			},
		},
		Session: SessionConfig{
			CredentialKey: "token",
			IdentityKey:   "userInfo",
			ExpiryLeeway:  30 * time.Second,
		},
		Navigation: NavigationConfig{
			AppTitle:      "Ledger Management System",
			LoginPath:     "/login",
			HomePath:      "/ledger/list",
			RedirectParam: "redirect",
			MaxRedirects:  8,
		},
		Storage: StorageConfig{
			Backend:     StorageMemory,
			RedisPrefix: "ledgergate",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.API.Headers != nil {
		out.API.Headers = make(map[string]string, len(cfg.API.Headers))
		for k, v := range cfg.API.Headers {
			out.API.Headers[k] = v
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error, wrapped in
// [ErrInvalidConfig].
func (c *Config) Validate() error {
	// API
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return invalid("API BaseURL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("API BaseURL must be an absolute http(s) url")
	}
	if u.Host == "" {
		return invalid("API BaseURL has no host")
	}
	if !strings.HasPrefix(c.API.LoginEndpoint, "/") {
		return invalid("API LoginEndpoint must start with /")
	}
	if c.API.Timeout < 0 {
		return invalid("API Timeout must be >= 0")
	}
	if c.API.MaxBodyBytes <= 0 {
		return invalid("API MaxBodyBytes must be > 0")
	}

	// Session
	if strings.TrimSpace(c.Session.CredentialKey) == "" || strings.TrimSpace(c.Session.IdentityKey) == "" {
		return invalid("Session CredentialKey and IdentityKey must be set")
	}
	if c.Session.CredentialKey == c.Session.IdentityKey {
		return invalid("Session CredentialKey and IdentityKey must differ")
	}
	if c.Session.ExpiryLeeway < 0 {
		return invalid("Session ExpiryLeeway must be >= 0")
	}

	// Navigation
	for name, p := range map[string]string{"LoginPath": c.Navigation.LoginPath, "HomePath": c.Navigation.HomePath} {
		if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
			return invalid("Navigation %s must be a local path", name)
		}
	}
	if c.Navigation.LoginPath == c.Navigation.HomePath {
		return invalid("Navigation LoginPath and HomePath must differ")
	}
	if c.Navigation.RedirectParam == "" {
		return invalid("Navigation RedirectParam must be set")
	}
	if c.Navigation.MaxRedirects < 1 {
		return invalid("Navigation MaxRedirects must be >= 1")
	}

	// Storage
	switch c.Storage.Backend {
	case StorageMemory, StorageBadger:
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			return invalid("Storage RedisAddr is required for the redis backend")
		}
		if c.Storage.RedisTTL < 0 {
			return invalid("Storage RedisTTL must be >= 0")
		}
	default:
		return invalid("Storage Backend %q is not supported", c.Storage.Backend)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalid("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

/*
====================================
LINT
====================================
*/

// LintWarning is a configuration that is valid but probably unintended.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the ordered list of warnings returned by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// Lint reports settings that are legal but risky. It never fails; call
// Validate first.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.API.Timeout == 0 {
		add("timeout_disabled", "API Timeout is 0; a hung server blocks calls until the caller's context ends")
	} else if c.API.Timeout > time.Minute {
		add("timeout_long", "API Timeout exceeds one minute")
	}
	if u, err := url.Parse(c.API.BaseURL); err == nil && u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
		add("insecure_base_url", "API BaseURL uses plain http to a non-local host; credentials travel in clear text")
	}
	if c.Storage.Backend == StorageMemory {
		add("storage_ephemeral", "Storage Backend is memory; the session does not survive a restart")
	}
	if c.Storage.Backend == StorageBadger && c.Storage.BadgerPath == "" {
		add("storage_ephemeral", "Storage BadgerPath is empty; badger runs in memory")
	}
	if !c.Session.DiscardExpired {
		add("expired_credentials_kept", "Session DiscardExpired is false; an expired credential is restored until the API rejects it")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_may_block", "Audit DropIfFull is false; a slow sink blocks calls")
	}
	if c.Navigation.MaxRedirects > 32 {
		add("redirects_high", "Navigation MaxRedirects above 32 hides redirect loops")
	}
	return ws
}

func isLoopbackHost(h string) bool {
	return h == "localhost" || h == "127.0.0.1" || h == "::1"
}
