// Package config loads the Cadence configuration from cadence.yaml, the
// environment (CADENCE_*) and .env, in the order flags > env > file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/cadence/internal/runtime"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "CADENCE"

// Config is the resolved configuration.
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	ScriptsDir string `mapstructure:"scripts_dir"`
	WorkDir    string `mapstructure:"work_dir"`
	Save       bool   `mapstructure:"save"`
	Batch      int    `mapstructure:"batch"`

	ClockHz            int           `mapstructure:"clock_hz"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	PollMaxInterval    time.Duration `mapstructure:"poll_max_interval"`
	AcquisitionTimeout time.Duration `mapstructure:"acquisition_timeout"`
	HandoffTimeout     time.Duration `mapstructure:"handoff_timeout"`
	CleanupTimeout     time.Duration `mapstructure:"cleanup_timeout"`
	LeaseTTL           time.Duration `mapstructure:"lease_ttl"`

	HardwareURL  string `mapstructure:"hardware_url"`
	Simulate     bool   `mapstructure:"simulate"`
	AnalyzerURL  string `mapstructure:"analyzer_url"`
	ToolsFile    string `mapstructure:"tools_file"`
	AnalysisTool string `mapstructure:"analysis_tool"`

	Index    IndexConfig    `mapstructure:"index"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Hardware HardwareConfig `mapstructure:"hardware"`

	LogLevel string `mapstructure:"log_level"`
}

// IndexConfig selects the run index backend.
type IndexConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, redis or memory
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig configures the redis client used for the lease and the redis index.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPConfig configures the published orchestrator.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// HardwareConfig configures the simulated hardware controller service.
type HardwareConfig struct {
	Addr         string `mapstructure:"addr"`
	AnalyzerAddr string `mapstructure:"analyzer_addr"`
}

// SetDefaults registers every key so env overrides apply to nested keys too.
func SetDefaults(v *viper.Viper) {
	rt := runtime.DefaultConfig()
	v.SetDefault("data_dir", "./data")
	v.SetDefault("scripts_dir", "./scripts")
	v.SetDefault("work_dir", "")
	v.SetDefault("save", true)
	v.SetDefault("batch", 0)
	v.SetDefault("clock_hz", rt.ClockHz)
	v.SetDefault("settle_delay", rt.SettleDelay)
	v.SetDefault("poll_interval", rt.PollInterval)
	v.SetDefault("poll_max_interval", rt.PollMaxInterval)
	v.SetDefault("acquisition_timeout", rt.AcquisitionTimeout)
	v.SetDefault("handoff_timeout", rt.HandoffTimeout)
	v.SetDefault("cleanup_timeout", rt.CleanupTimeout)
	v.SetDefault("lease_ttl", rt.LeaseTTL)
	v.SetDefault("hardware_url", "http://localhost:1172")
	v.SetDefault("simulate", false)
	v.SetDefault("analyzer_url", "http://localhost:1188")
	v.SetDefault("tools_file", "tools.yaml")
	v.SetDefault("analysis_tool", "")
	v.SetDefault("index.driver", "sqlite")
	v.SetDefault("index.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("http.addr", ":1180")
	v.SetDefault("hardware.addr", ":1172")
	v.SetDefault("hardware.analyzer_addr", ":1188")
	v.SetDefault("log_level", "info")
}

// Load reads the configuration into v and decodes it.
// An empty file searches cadence.yaml in . and $HOME/.cadence; a missing
// search result is not an error, a missing explicit file is.
func Load(v *viper.Viper, file string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("cadence")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.cadence")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return Decode(v.AllSettings())
}

// Decode turns a settings map into a Config and fills derived paths.
func Decode(settings map[string]any) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(cfg.DataDir, "replay")
	}
	if cfg.Index.DSN == "" && cfg.Index.Driver == "sqlite" {
		cfg.Index.DSN = filepath.Join(cfg.DataDir, "runs.db")
	}
	switch cfg.Index.Driver {
	case "sqlite", "redis", "memory":
	default:
		return nil, fmt.Errorf("invalid config: unknown index driver %q", cfg.Index.Driver)
	}
	if cfg.Index.Driver == "redis" && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("invalid config: index driver redis needs redis.addr")
	}
	return &cfg, nil
}

// Runtime returns the run timing.
func (c *Config) Runtime() runtime.Config {
	return runtime.Config{
		ClockHz:            c.ClockHz,
		SettleDelay:        c.SettleDelay,
		PollInterval:       c.PollInterval,
		PollMaxInterval:    c.PollMaxInterval,
		AcquisitionTimeout: c.AcquisitionTimeout,
		HandoffTimeout:     c.HandoffTimeout,
		CleanupTimeout:     c.CleanupTimeout,
		LeaseTTL:           c.LeaseTTL,
	}
}

// loadDotEnv exports path into the process environment. Variables already
// set win over the file.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
