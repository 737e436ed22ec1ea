package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corebridge/process-service/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/process")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, "9083", cfg.GRPCPort)
	assert.Equal(t, config.IDSourceSnowflake, cfg.IDSource)
	assert.Equal(t, int64(1), cfg.SnowflakeNodeID)
	assert.Equal(t, 30*time.Second, cfg.StatsCacheTTL)
	assert.Equal(t, 168*time.Hour, cfg.StaleAfter)
	assert.Equal(t, "@every 1h", cfg.StaleSweepSchedule)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, 5*time.Minute, cfg.DBMaxConnIdleTime)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestLoadFailsFast(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mysql"}},
		{"redis ids without redis", map[string]string{"STORE_DRIVER": "sqlite", "ID_SOURCE": "redis", "REDIS_URL": ""}},
		{"node out of range", map[string]string{"STORE_DRIVER": "sqlite", "SNOWFLAKE_NODE_ID": "2048"}},
		{"bad duration", map[string]string{"STORE_DRIVER": "sqlite", "STALE_AFTER": "soon"}},
		{"bad log level", map[string]string{"STORE_DRIVER": "sqlite", "LOG_LEVEL": "loud"}},
		{"zero queue", map[string]string{"STORE_DRIVER": "sqlite", "NOTIFY_QUEUE_SIZE": "0"}},
		{"negative pool size", map[string]string{"STORE_DRIVER": "sqlite", "DB_MAX_CONNS": "-1"}},
		{"negative idle time", map[string]string{"STORE_DRIVER": "sqlite", "DB_MAX_CONN_IDLE_TIME": "-1m"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadSQLite(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/p.db")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/p.db", cfg.SQLitePath)

	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("DB_MAX_CONN_IDLE_TIME", "90s")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, int32(25), cfg.DBMaxConns)
	assert.Equal(t, 90*time.Second, cfg.DBMaxConnIdleTime)
	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}
