package database

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSettingsDSN(t *testing.T) {
	s := Settings{User: "farmer", Pass: "p@ss", Host: "db", Port: "3306", Name: "objections"}

	t.Run("runtime dsn", func(t *testing.T) {
		cfg, err := mysql.ParseDSN(s.DSN(false))
		require.NoError(t, err)

		assert.Equal(t, "farmer", cfg.User)
		assert.Equal(t, "p@ss", cfg.Passwd)
		assert.Equal(t, "db:3306", cfg.Addr)
		assert.Equal(t, "objections", cfg.DBName)
		assert.True(t, cfg.ParseTime)
		assert.False(t, cfg.MultiStatements)
		assert.Equal(t, "'+00:00'", cfg.Params["time_zone"])
	})

	t.Run("migration dsn", func(t *testing.T) {
		cfg, err := mysql.ParseDSN(s.DSN(true))
		require.NoError(t, err)

		assert.True(t, cfg.MultiStatements)
		assert.Empty(t, cfg.Params["time_zone"])
	})
}

func TestOpenWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Port 1 on localhost refuses immediately, so the loop reaches the
	// cancelled select after the first attempt.
	s := Settings{User: "u", Host: "127.0.0.1", Port: "1", Name: "x"}
	_, err := OpenWithRetry(ctx, s, 3, time.Hour, zap.NewNop())
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "0001_init.up.sql")
	assert.Contains(t, names, "0001_init.down.sql")

	up, err := fs.ReadFile(migrationFiles, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(up), "uq_objection_active_farmer"))

	attempts, err := fs.ReadFile(migrationFiles, "migrations/0002_password_reset_attempts.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(attempts), "failed_attempts")
	assert.Contains(t, names, "0002_password_reset_attempts.down.sql")
}
