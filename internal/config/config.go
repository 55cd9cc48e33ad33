package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"http"`

	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`

	Stream struct {
		WriteTimeout      time.Duration `mapstructure:"write_timeout"`
		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
		MaxSubscribers    int           `mapstructure:"max_subscribers"`
	} `mapstructure:"stream"`

	Events struct {
		// MaxLog caps the in-memory event log and the page render. 0 keeps everything.
		MaxLog int `mapstructure:"max_log"`
	} `mapstructure:"events"`

	Timeline struct {
		PageSize   int `mapstructure:"page_size"`
		MaxNoteLen int `mapstructure:"max_note_len"`
	} `mapstructure:"timeline"`

	Static struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"static"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("http.listen", "127.0.0.1:3000")
	v.SetDefault("stream.write_timeout", 10*time.Second)
	v.SetDefault("stream.heartbeat_interval", time.Duration(0))
	v.SetDefault("stream.max_subscribers", 0)
	v.SetDefault("events.max_log", 0)
	v.SetDefault("timeline.page_size", 50)
	v.SetDefault("timeline.max_note_len", 500)
	v.SetDefault("static.dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Env overrides
	v.SetEnvPrefix("FIXIHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("db.dsn", "FIXIHUB_DB_DSN")
	_ = v.BindEnv("http.listen", "FIXIHUB_HTTP_LISTEN")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// PORT is the platform convention; it only applies when nothing more
	// specific chose the address.
	if port := os.Getenv("PORT"); port != "" && os.Getenv("FIXIHUB_HTTP_LISTEN") == "" && !v.InConfig("http.listen") {
		c.HTTP.Listen = ":" + port
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	switch {
	case c.HTTP.Listen == "":
		return fmt.Errorf("http.listen is required")
	case c.Stream.WriteTimeout < 0:
		return fmt.Errorf("stream.write_timeout must not be negative")
	case c.Stream.HeartbeatInterval < 0:
		return fmt.Errorf("stream.heartbeat_interval must not be negative")
	case c.Stream.MaxSubscribers < 0:
		return fmt.Errorf("stream.max_subscribers must not be negative")
	case c.Timeline.MaxNoteLen <= 0:
		return fmt.Errorf("timeline.max_note_len must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: want text or json", c.Log.Format)
	}
	return nil
}

// RequireDB fails for commands that only make sense against Postgres.
func (c *Config) RequireDB() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required (set FIXIHUB_DB_DSN or config file)")
	}
	return nil
}
