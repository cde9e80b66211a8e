// Package config loads service settings from configs/config.yml, .env and
// GRID_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "GRID"

// Config is the full service configuration.
type Config struct {
	Port     string         `mapstructure:"port"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Load     RetryConfig    `mapstructure:"load"`
	Heat     HeatConfig     `mapstructure:"heat"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Map      MapConfig      `mapstructure:"map"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type UpstreamConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Horizon       int           `mapstructure:"horizon"`
	StepDeg       float64       `mapstructure:"step_deg"`
	DemandGrowth  float64       `mapstructure:"demand_growth"`
	ReserveMargin float64       `mapstructure:"reserve_margin"`
}

type PlaybackConfig struct {
	Tick     time.Duration `mapstructure:"tick"`
	Autoplay bool          `mapstructure:"autoplay"`
}

// RetryConfig bounds an exponential backoff.
type RetryConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type HeatConfig struct {
	RetryConfig `mapstructure:",squash"`
	CacheSize   int           `mapstructure:"cache_size"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig enables the shared heat cache tier when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type MapConfig struct {
	Style   string    `mapstructure:"style"`
	Center  []float64 `mapstructure:"center"`
	Zoom    float64   `mapstructure:"zoom"`
	Pitch   float64   `mapstructure:"pitch"`
	Bearing float64   `mapstructure:"bearing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("db.path", "grid_adequacy.db")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("upstream.base_url", "http://localhost:8000")
	v.SetDefault("upstream.timeout", 120*time.Second)
	v.SetDefault("upstream.horizon", 15)
	v.SetDefault("upstream.step_deg", 0.12)
	v.SetDefault("upstream.demand_growth", 0.045)
	v.SetDefault("upstream.reserve_margin", 0.15)
	v.SetDefault("playback.tick", 1200*time.Millisecond)
	v.SetDefault("playback.autoplay", true)
	v.SetDefault("load.max_retries", 3)
	v.SetDefault("load.initial_interval", 500*time.Millisecond)
	v.SetDefault("load.max_interval", 10*time.Second)
	v.SetDefault("heat.max_retries", 2)
	v.SetDefault("heat.initial_interval", 200*time.Millisecond)
	v.SetDefault("heat.max_interval", 2*time.Second)
	v.SetDefault("heat.cache_size", 32)
	v.SetDefault("heat.cache_ttl", 10*time.Minute)
	v.SetDefault("redis.prefix", "grid:heat:")
	v.SetDefault("map.style", "mapbox://styles/mapbox/dark-v11")
	v.SetDefault("map.center", []float64{90.35, 23.8})
	v.SetDefault("map.zoom", 5.4)
}

// Load reads configuration from dir (config.yml). A missing file is not an error.
func Load(dir string) (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("configs")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Playback.Tick <= 0 {
		return fmt.Errorf("playback.tick must be positive, got %s", c.Playback.Tick)
	}
	if c.Heat.CacheSize < 0 {
		return fmt.Errorf("heat.cache_size must be >= 0, got %d", c.Heat.CacheSize)
	}
	if len(c.Map.Center) != 2 {
		return fmt.Errorf("map.center must be [lon, lat], got %v", c.Map.Center)
	}
	return nil
}
