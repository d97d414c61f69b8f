package database

import (
	"context"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteLimitsPoolToOneConnection(t *testing.T) {
	db, err := Open(Options{
		Driver:       "SQLite",
		DSN:          filepath.Join(t.TempDir(), "tripmate.db"),
		MaxOpenConns: 8,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	require.NoError(t, Ping(context.Background(), db))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "mysql", DSN: "x"})
	require.ErrorContains(t, err, "unsupported database driver")

	_, err = Open(Options{Driver: "postgres"})
	require.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client, err := ConnectRedis(context.Background(), "redis://"+mini.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = ConnectRedis(context.Background(), "")
	require.Error(t, err)

	_, err = ConnectRedis(context.Background(), "not a url")
	require.Error(t, err)
}
