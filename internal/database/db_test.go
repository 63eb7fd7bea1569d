package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fuelstack.db")

	db, err := NewDB(path, nil)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"dining_halls", "menu_items", "execution_metrics", "optimization_runs"} {
		var name string
		err := db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}

	t.Run("migrations are idempotent", func(t *testing.T) {
		version, err := RunMigrations(path)
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)
	})
}
