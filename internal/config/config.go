package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the application.
type Config struct {
	HTTPPort    int    `json:"http_port" validate:"gte=0"`
	MetricsPort int    `json:"metrics_port" validate:"gte=0"`
	LogLevel    string `json:"log_level" validate:"oneof=debug info warn error"`
	DBPath      string `json:"db_path" validate:"required"`

	Scheduler struct {
		TickInterval     Duration `json:"tick_interval" validate:"min=1s"`
		HistoryRetention Duration `json:"history_retention" validate:"gte=0"`
	} `json:"scheduler"`

	Actions struct {
		CommandTimeout Duration `json:"command_timeout" validate:"min=1s"`
		NotesDir       string   `json:"notes_dir" validate:"required"`
		MemoryPath     string   `json:"memory_path" validate:"required"`
	} `json:"actions"`
}

// Duration is a wrapper around time.Duration that implements JSON marshaling/unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads configuration from a file and overrides with environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills fields the config file may omit.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Scheduler.TickInterval.Duration == 0 {
		c.Scheduler.TickInterval = Duration{time.Minute}
	}
	if c.Actions.CommandTimeout.Duration == 0 {
		c.Actions.CommandTimeout = Duration{30 * time.Second}
	}
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	// HTTPPort overrides
	if v := os.Getenv("HTTP_PORT"); v != "" {
		var err error
		c.HTTPPort, err = parseInt(v)
		if err != nil {
			return fmt.Errorf("parsing HTTP_PORT: %w", err)
		}
	}

	// MetricsPort overrides
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var err error
		c.MetricsPort, err = parseInt(v)
		if err != nil {
			return fmt.Errorf("parsing METRICS_PORT: %w", err)
		}
	}

	// LogLevel overrides
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	// DBPath overrides
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}

	// Scheduler overrides
	if v := os.Getenv("SCHEDULER_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing SCHEDULER_TICK_INTERVAL: %w", err)
		}
		c.Scheduler.TickInterval = Duration{d}
	}
	if v := os.Getenv("SCHEDULER_HISTORY_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing SCHEDULER_HISTORY_RETENTION: %w", err)
		}
		c.Scheduler.HistoryRetention = Duration{d}
	}

	// Actions overrides
	if v := os.Getenv("ACTIONS_COMMAND_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing ACTIONS_COMMAND_TIMEOUT: %w", err)
		}
		c.Actions.CommandTimeout = Duration{d}
	}
	if v := os.Getenv("ACTIONS_NOTES_DIR"); v != "" {
		c.Actions.NotesDir = v
	}
	if v := os.Getenv("ACTIONS_MEMORY_PATH"); v != "" {
		c.Actions.MemoryPath = v
	}

	return nil
}

// validate checks the configuration for errors.
func (c *Config) validate() error {
	validate := validator.New()

	// Register custom validation for Duration
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
