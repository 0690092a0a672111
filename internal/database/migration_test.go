package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gnss-configurator/internal/config"
)

func TestSQLiteMigrations(t *testing.T) {
	logger := zap.NewNop()
	db, err := NewConnection(&config.JournalConfig{
		Enabled: true,
		Driver:  config.DriverSQLite,
		DSN:     filepath.Join(t.TempDir(), "nested", "journal.db"),
	}, logger)
	require.NoError(t, err)
	defer db.Close()

	m := NewMigrator(db, logger)

	version, dirty, err := m.Version()
	require.NoError(t, err)
	require.Equal(t, uint(0), version)
	require.False(t, dirty)

	require.NoError(t, m.Up())
	require.NoError(t, m.Up(), "second run is a no-op")

	version, dirty, err = m.Version()
	require.NoError(t, err)
	require.Equal(t, uint(1), version)
	require.False(t, dirty)

	var tables int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'provision_%'`).Scan(&tables)
	require.NoError(t, err)
	require.Equal(t, 2, tables)

	require.NoError(t, db.Health(context.Background()))

	require.NoError(t, m.Down())
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'provision_%'`).Scan(&tables)
	require.NoError(t, err)
	require.Equal(t, 0, tables)
}

func TestNewConnectionUnsupportedDriver(t *testing.T) {
	_, err := NewConnection(&config.JournalConfig{Driver: "mysql", DSN: "x"}, zap.NewNop())
	require.ErrorContains(t, err, "unsupported journal driver")
}
