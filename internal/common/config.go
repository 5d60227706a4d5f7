package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/kestrelsec/browservault/internal/models"
)

const (
	// EnvConfigPath overrides the default config file location.
	EnvConfigPath = "BROWSERVAULT_CONFIG"
	// EnvCachePassphrase supplies the mandatory credential-cache passphrase.
	EnvCachePassphrase = "BROWSERVAULT_CACHE_PASSPHRASE"

	defaultConfigFile = "browservault.toml"
)

// Config represents the application configuration
type Config struct {
	Vault     VaultConfig     `toml:"vault"`
	Security  SecurityConfig  `toml:"security"`
	Isolation IsolationConfig `toml:"isolation"`
	Logging   LoggingConfig   `toml:"logging"`
}

// VaultConfig selects the credential backends and holds per-site mappings.
type VaultConfig struct {
	Provider models.VaultProviderName `toml:"provider" validate:"oneof=onepassword bitwarden keyring env"` // Primary provider queried first during discovery
	Fallback models.VaultProviderName `toml:"fallback" validate:"omitempty,oneof=onepassword bitwarden keyring env"`
	Sites    map[string]models.SiteConfig `toml:"sites" validate:"dive"` // Site key -> vault item mapping
}

// SecurityConfig groups cache, network, audit, and session settings.
type SecurityConfig struct {
	DefaultTTLMinutes int           `toml:"default_ttl_minutes" validate:"min=1"` // Credential cache TTL
	Network           NetworkConfig `toml:"network"`
	Audit             AuditConfig   `toml:"audit"`
	Session           SessionConfig `toml:"session"`
}

type NetworkConfig struct {
	VaultCLITimeout time.Duration `toml:"vault_cli_timeout"` // Bound on blocking vault CLI child processes
	WebhookTimeout  time.Duration `toml:"webhook_timeout"`   // Bound on audit webhook POSTs
}

// AuditConfig controls the append-only audit log and its optional mirror.
type AuditConfig struct {
	Path           string            `toml:"path"`            // Audit log file (newline-delimited JSON)
	RetentionDays  int               `toml:"retention_days"`  // Rotation drops records older than this
	RotateSchedule string            `toml:"rotate_schedule"` // Cron schedule for automatic rotation (empty = manual only)
	WebhookURL     string            `toml:"webhook_url"`     // Optional mirror; failures never block the local append
	WebhookHeaders map[string]string `toml:"webhook_headers"` // Custom headers for the webhook POST
}

type SessionConfig struct {
	MaxDurationMinutes int `toml:"max_duration_minutes" validate:"min=1"` // Default session budget
	WatchInterval      time.Duration `toml:"watch_interval"` // Timeout watcher poll interval
	WipePasses         int           `toml:"wipe_passes" validate:"min=1"` // Overwrite passes during secure cleanup
}

type IsolationConfig struct {
	IncognitoMode bool   `toml:"incognito_mode"` // Hint consumed by the external browser layer
	SecureWorkdir bool   `toml:"secure_workdir"` // Allocate per-session temp workdirs
	AutoCleanup   bool   `toml:"auto_cleanup"`   // Run secure cleanup on session close
	WorkdirRoot   string `toml:"workdir_root"`   // Base for session workdirs (empty = os.TempDir)
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings should be exposed in browservault.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Vault: VaultConfig{
			Provider: models.ProviderEnv, // Always-available default; real deployments configure a vault CLI
			Sites:    map[string]models.SiteConfig{},
		},
		Security: SecurityConfig{
			DefaultTTLMinutes: 15,
			Network: NetworkConfig{
				VaultCLITimeout: 10 * time.Second,
				WebhookTimeout:  5 * time.Second,
			},
			Audit: AuditConfig{
				Path:          filepath.Join(ConfigDir(), "audit.log"),
				RetentionDays: 90,
			},
			Session: SessionConfig{
				MaxDurationMinutes: 30,
				WatchInterval:      5 * time.Second,
				WipePasses:         3,
			},
		},
		Isolation: IsolationConfig{
			IncognitoMode: true,
			SecureWorkdir: true,
			AutoCleanup:   true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
	}
}

// ConfigDir returns the dedicated config directory (~/.browservault),
// creating it with owner-only permissions if needed.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".browservault"
	}
	dir := filepath.Join(home, ".browservault")
	_ = os.MkdirAll(dir, 0o700)
	return dir
}

// DefaultConfigPath resolves the config file location: the env override if
// set, otherwise browservault.toml in the config directory.
func DefaultConfigPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), defaultConfigFile)
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// Unmarshalling the file over the defaults struct merges field-by-field, so
// a user specifying one nested field never wipes out sibling defaults. If
// the file is absent a default config is synthesized and persisted.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	config := NewDefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if werr := SaveConfig(config, path); werr != nil {
			return nil, fmt.Errorf("failed to persist default config to %s: %w", path, werr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, &models.ConfigurationError{Reason: err.Error()}
	}

	return config, nil
}

// SaveConfig writes the configuration as TOML with owner-only permissions.
func SaveConfig(config *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if provider := os.Getenv("BROWSERVAULT_PROVIDER"); provider != "" {
		config.Vault.Provider = models.VaultProviderName(provider)
	}
	if fallback := os.Getenv("BROWSERVAULT_FALLBACK_PROVIDER"); fallback != "" {
		config.Vault.Fallback = models.VaultProviderName(fallback)
	}
	if ttl := os.Getenv("BROWSERVAULT_DEFAULT_TTL_MINUTES"); ttl != "" {
		if m, err := strconv.Atoi(ttl); err == nil {
			config.Security.DefaultTTLMinutes = m
		}
	}
	if path := os.Getenv("BROWSERVAULT_AUDIT_PATH"); path != "" {
		config.Security.Audit.Path = path
	}
	if url := os.Getenv("BROWSERVAULT_AUDIT_WEBHOOK"); url != "" {
		config.Security.Audit.WebhookURL = url
	}
	if level := os.Getenv("BROWSERVAULT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("BROWSERVAULT_LOG_OUTPUT"); output != "" {
		parts := strings.Split(output, ",")
		outputs := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// CachePassphrase returns the mandatory cache-encryption passphrase from the
// environment. The cache subsystem refuses to operate without it - there is
// no default key fallback.
func CachePassphrase() (string, error) {
	passphrase := os.Getenv(EnvCachePassphrase)
	if passphrase == "" {
		return "", &models.ConfigurationError{
			Field:  EnvCachePassphrase,
			Reason: "cache encryption passphrase is not set; export " + EnvCachePassphrase + " before enabling the credential cache",
		}
	}
	return passphrase, nil
}
