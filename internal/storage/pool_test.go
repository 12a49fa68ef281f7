package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"defaults are valid", func(c *Config) {}, true},
		{"empty path", func(c *Config) { c.Path = "" }, false},
		{"zero open conns", func(c *Config) { c.MaxOpenConns = 0 }, false},
		{"negative idle conns", func(c *Config) { c.MaxIdleConns = -1 }, false},
		{"idle exceeds open", func(c *Config) { c.MaxIdleConns = c.MaxOpenConns + 1 }, false},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }, false},
		{"idle time exceeds lifetime", func(c *Config) {
			c.ConnMaxLifetime = time.Minute
			c.ConnMaxIdleTime = time.Hour
		}, false},
		{"zero busy timeout", func(c *Config) { c.BusyTimeout = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidInput)
			}
		})
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"jobs", "job_history"} {
		var name string
		err := db.QueryRowContext(context.Background(),
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	// Running migrations again must not fail.
	require.NoError(t, Migrate(context.Background(), db))
}
