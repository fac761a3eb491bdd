package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	API   APIConfig
	Cache CacheConfig
	Log   LogConfig
	Stub  StubConfig
}

// APIConfig points the client at the prediction endpoint. An empty URL
// selects the default local endpoint.
type APIConfig struct {
	URL     string
	Timeout time.Duration
}

// CacheConfig enables the redis result cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level string
	Path  string
}

// StubConfig configures the local stand-in prediction endpoint.
type StubConfig struct {
	Addr                string
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	PlantThreshold      float64 `mapstructure:"plant_threshold"`
}

// Load reads configuration from file and env. Env var overrides use prefix
// LEAFCHECK_; the endpoint may also be given as API_URL.
func Load() (Config, error) {
	return LoadFile(os.Getenv("LEAFCHECK_CONFIG"))
}

// LoadFile is Load with an explicit config file. An empty path searches
// $HOME/.config/leaf-check for config.yaml and tolerates its absence.
func LoadFile(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("api.url", "")
	v.SetDefault("api.timeout", "60s")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("stub.addr", "127.0.0.1:8000")
	v.SetDefault("stub.confidence_threshold", 0.80)
	v.SetDefault("stub.plant_threshold", 0.35)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "leaf-check"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEAFCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api.url", "LEAFCHECK_API_URL", "API_URL"); err != nil {
		return Config{}, fmt.Errorf("bind api.url: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.API.Timeout <= 0 {
		return Config{}, fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	return c, nil
}
