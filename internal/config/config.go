// Package config loads the daemon's configuration via viper: a nested
// Server/Logging section shape with GONIMBUS_-prefixed env var
// overrides, covering the fields this indexing core actually needs
// (data directory, HTTP server bind settings, logging, indexing
// defaults, cache defaults, and a pricing rate card for
// pkg/metricsstore.Cost). Defaults live under os.UserConfigDir, since
// this daemon is a long-lived service with a user data directory, not
// a repo-relative CLI tool.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "GONIMBUS"

// ServerConfig configures the HTTP operation surface (internal/server).
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures internal/observability.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// IndexDefaultsConfig seeds pkg/indexdriver.Config for profiles that
// don't override it explicitly.
type IndexDefaultsConfig struct {
	MaxInitialRequests int     `mapstructure:"max_initial_requests"`
	BatchSize          int     `mapstructure:"batch_size"`
	StaleTTLHours      int     `mapstructure:"stale_ttl_hours"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second"`
}

// CacheConfig seeds pkg/handlecache.Config.
type CacheConfig struct {
	MaxEntries      int `mapstructure:"max_entries"`
	IdleTimeoutSecs int `mapstructure:"idle_timeout_secs"`
	TTLSecs         int `mapstructure:"ttl_secs"`
}

// IdleTimeout returns IdleTimeoutSecs as a time.Duration.
func (c CacheConfig) IdleTimeout() time.Duration { return time.Duration(c.IdleTimeoutSecs) * time.Second }

// TTL returns TTLSecs as a time.Duration.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSecs) * time.Second }

// PricingConfig is the rate card fed to pkg/metricsstore.Cost.
type PricingConfig struct {
	GetPerThousand    float64 `mapstructure:"get_per_thousand"`
	PutPerThousand    float64 `mapstructure:"put_per_thousand"`
	ListPerThousand   float64 `mapstructure:"list_per_thousand"`
	DeletePerThousand float64 `mapstructure:"delete_per_thousand"`
}

// Config is the daemon's fully resolved configuration.
type Config struct {
	DataDir       string              `mapstructure:"data_dir"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	IndexDefaults IndexDefaultsConfig `mapstructure:"index_defaults"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Pricing       PricingConfig       `mapstructure:"pricing"`
}

var (
	configMu sync.RWMutex
	current  *Config
)

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("data_dir", dataDir)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("index_defaults.max_initial_requests", 20)
	v.SetDefault("index_defaults.batch_size", 1000)
	v.SetDefault("index_defaults.stale_ttl_hours", 24)
	v.SetDefault("index_defaults.requests_per_second", 0)

	v.SetDefault("cache.max_entries", 16)
	v.SetDefault("cache.idle_timeout_secs", 600)
	v.SetDefault("cache.ttl_secs", 0)

	v.SetDefault("pricing.get_per_thousand", 0.0004)
	v.SetDefault("pricing.put_per_thousand", 0.005)
	v.SetDefault("pricing.list_per_thousand", 0.005)
	v.SetDefault("pricing.delete_per_thousand", 0.0)
}

// defaultDataDir resolves a per-user data directory for the daemon's
// per-profile and metrics databases under os.UserConfigDir, e.g.
// ~/.config/gonimbusd on Linux or the platform equivalent, falling back
// to the temp directory when that cannot be resolved.
func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "gonimbusd")
}

// Load resolves configuration from defaults, an optional config file
// (GONIMBUS_CONFIG_FILE or ./gonimbus.yaml), GONIMBUS_-prefixed
// environment variables, and finally runtime overrides, in ascending
// precedence (later sources win). It also stores the result for GetConfig.
func Load(_ context.Context, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, defaultDataDir())

	if path := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("gonimbus")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	for _, o := range overrides {
		for key, val := range flattenOverrides("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	configMu.Lock()
	current = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// flattenOverrides turns a nested map (as passed by callers mirroring the
// teacher's overrides shape, e.g. {"server": {"port": 9000}}) into
// viper-compatible dotted keys.
func flattenOverrides(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flattenOverrides(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}

// GetConfig returns the most recently Load-ed configuration, or nil if
// Load has not been called yet.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return current
}
