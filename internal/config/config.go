package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	General  GeneralConfig  `toml:"general"`
	Server   ServerConfig   `toml:"server"`
	Events   EventsConfig   `toml:"events"`
	Redis    RedisConfig    `toml:"redis"`
	Schedule ScheduleConfig `toml:"schedule"`
}

type GeneralConfig struct {
	DBPath   string `toml:"db_path"`
	LogLevel string `toml:"log_level"`
	// Decimals of the native unit when amounts are shown to or read from humans.
	Decimals int32 `toml:"decimals"`
}

type ServerConfig struct {
	Addr         string   `toml:"addr"`
	CORSOrigins  []string `toml:"cors_origins"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

type EventsConfig struct {
	// Publisher is one of "log", "redis" or "none".
	Publisher string `toml:"publisher"`
	Channel   string `toml:"channel"`
	BatchSize int    `toml:"batch_size"`
}

type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

type ScheduleConfig struct {
	RelayInterval  Duration `toml:"relay_interval"`
	ReportInterval Duration `toml:"report_interval"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Load merges the TOML file at path over the defaults and applies LYNORA_*
// environment overrides. An empty path skips the file. The result is not
// validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.General.DBPath, "LYNORA_DB_PATH")
	setStr(&cfg.General.LogLevel, "LYNORA_LOG_LEVEL")
	setInt32(&cfg.General.Decimals, "LYNORA_DECIMALS")

	setStr(&cfg.Server.Addr, "LYNORA_SERVER_ADDR")
	setStringSlice(&cfg.Server.CORSOrigins, "LYNORA_CORS_ORIGINS")
	setDuration(&cfg.Server.ReadTimeout, "LYNORA_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "LYNORA_WRITE_TIMEOUT")

	setStr(&cfg.Events.Publisher, "LYNORA_EVENTS_PUBLISHER")
	setStr(&cfg.Events.Channel, "LYNORA_EVENTS_CHANNEL")
	setInt(&cfg.Events.BatchSize, "LYNORA_EVENTS_BATCH_SIZE")

	setStr(&cfg.Redis.Addr, "LYNORA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LYNORA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LYNORA_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "LYNORA_REDIS_TLS")

	setDuration(&cfg.Schedule.RelayInterval, "LYNORA_RELAY_INTERVAL")
	setDuration(&cfg.Schedule.ReportInterval, "LYNORA_REPORT_INTERVAL")
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.General.DBPath == "":
		return fmt.Errorf("general.db_path is required")
	case c.General.Decimals < 0 || c.General.Decimals > 18:
		return fmt.Errorf("general.decimals must be between 0 and 18, got %d", c.General.Decimals)
	case c.Events.BatchSize <= 0:
		return fmt.Errorf("events.batch_size must be positive, got %d", c.Events.BatchSize)
	case c.Schedule.RelayInterval.Duration <= 0:
		return fmt.Errorf("schedule.relay_interval must be positive")
	case c.Schedule.ReportInterval.Duration <= 0:
		return fmt.Errorf("schedule.report_interval must be positive")
	}

	switch strings.ToLower(c.Events.Publisher) {
	case "log", "none":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when events.publisher is redis")
		}
	default:
		return fmt.Errorf("events.publisher must be log, redis or none, got %q", c.Events.Publisher)
	}

	switch strings.ToLower(c.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("general.log_level %q is not one of debug, info, warn, error", c.General.LogLevel)
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DBPath:   "./data/lynora.db",
			LogLevel: "info",
			Decimals: 9,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			CORSOrigins:  []string{"*"},
			ReadTimeout:  Duration{10 * time.Second},
			WriteTimeout: Duration{10 * time.Second},
		},
		Events: EventsConfig{
			Publisher: "log",
			Channel:   "lynora",
			BatchSize: 100,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Schedule: ScheduleConfig{
			RelayInterval:  Duration{5 * time.Second},
			ReportInterval: Duration{1 * time.Hour},
		},
	}
}
