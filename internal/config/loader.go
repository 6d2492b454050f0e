package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the unprefixed variables the server has
// always read. The VOLTIG_ prefixed form is listed first and wins when both are set.
var envBindings = map[string]string{
	"env":                  "NODE_ENV",
	"server.port":          "PORT",
	"server.log_level":     "LOG_LEVEL",
	"database.url":         "DATABASE_URL",
	"auth.secret":          "AUTH_SECRET",
	"auth.base_url":        "BASE_URL",
	"auth.api_secret_key":  "API_SECRET_KEY",
	"rate_limit.max":       "RATE_LIMIT_MAX",
	"rate_limit.window":    "RATE_LIMIT_WINDOW",
	"rate_limit.redis_url": "REDIS_URL",
	"security.headers":     "ENABLE_SECURITY_HEADERS",
}

// prefixedKeys are bound only under the VOLTIG_ prefix,
// e.g. VOLTIG_SERVER_REQUEST_TIMEOUT overrides server.request_timeout.
var prefixedKeys = []string{
	"server.host",
	"server.request_timeout",
	"server.shutdown_timeout",
	"database.max_open_conns",
	"database.max_idle_conns",
	"database.conn_max_lifetime",
	"database.auto_migrate",
	"auth.session_expires_in",
	"auth.session_update_age",
	"auth.cookie_cache_max_age",
	"auth.min_password_length",
	"auth.max_password_length",
	"auth.cookie_domain",
	"rate_limit.enabled",
	"rate_limit.store",
	"rate_limit.ban_after",
	"rate_limit.ban_duration",
	"rate_limit.cleanup_interval",
	"cors.max_age",
	"security.max_body_bytes",
	"security.suspicious_log_rate",
	"telemetry.traces",
	"telemetry.metrics",
	"telemetry.metric_interval",
}

// LoadDotEnv loads variables from a .env file in the working directory.
// Variables already present in the environment are not overridden.
// A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for voltig-turbo.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// ReadInConfig returns ConfigFileNotFoundError, which callers ignore.
		viper.SetConfigName("voltig-turbo")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VOLTIG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindEnvKeys()
}

// findConfigFile searches standard locations for a voltig-turbo config file.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".voltig-turbo"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "voltig-turbo"))
		}
	} else {
		paths = append(paths, "/etc/voltig-turbo")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for voltig-turbo.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "voltig-turbo"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func bindEnvKeys() {
	for key, name := range envBindings {
		_ = viper.BindEnv(key, envName(key), name)
	}
	for _, key := range prefixedKeys {
		_ = viper.BindEnv(key)
	}
	// Note: rate_limit.tiers, cors.allowed_origins and auth.trusted_origins
	// are lists and should be set in the config file.
}

// envName returns the VOLTIG_ prefixed variable for key.
func envName(key string) string {
	return "VOLTIG_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, applies development defaults and validates.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override Env before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Environment-only configuration.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
