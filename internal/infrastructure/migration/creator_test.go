package migration

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/printshop/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add sync index", "add_sync_index"},
		{"Add-Sync-Index", "add_sync_index"},
		{"ADD_SYNC_INDEX", "add_sync_index"},
		{"add__sync__index", "add_sync_index"},
		{"Add Orders 2", "add_orders_2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- test"), 0o644))
	}
}

func TestCreateMigration(t *testing.T) {
	t.Run("first migration is version 1", func(t *testing.T) {
		dir := t.TempDir()

		m, err := CreateMigration(dir, "add sync index", "Index sync logs by entity")
		require.NoError(t, err)
		assert.Equal(t, uint(1), m.Version)
		assert.Equal(t, "000001_add_sync_index", m.FileBase())

		up, err := os.ReadFile(m.UpPath)
		require.NoError(t, err)
		assert.Contains(t, string(up), "add_sync_index")
		assert.Contains(t, string(up), "Index sync logs by entity")

		down, err := os.ReadFile(m.DownPath)
		require.NoError(t, err)
		assert.Contains(t, string(down), "Rollback")
	})

	t.Run("continues after the highest version", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir,
			"000001_init.up.sql", "000001_init.down.sql",
			"000004_orders.up.sql", "000004_orders.down.sql",
		)

		m, err := CreateMigration(dir, "Next One", "")
		require.NoError(t, err)
		assert.Equal(t, uint(5), m.Version)
		assert.Equal(t, filepath.Join(dir, "000005_next_one.up.sql"), m.UpPath)
	})

	t.Run("creates the directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "migrations")

		_, err := CreateMigration(dir, "test", "")
		require.NoError(t, err)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("rejects empty names", func(t *testing.T) {
		_, err := CreateMigration(t.TempDir(), "!!!", "")
		assert.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	t.Run("sorted by version", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir,
			"000010_late.up.sql", "000010_late.down.sql",
			"000002_add_orders.up.sql", "000002_add_orders.down.sql",
			"000001_init.up.sql", "000001_init.down.sql",
		)

		list, err := ListMigrations(dir)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, uint(1), list[0].Version)
		assert.Equal(t, "add_orders", list[1].Name)
		assert.Equal(t, "000010_late", list[2].FileBase())
	})

	t.Run("ignores other files and directories", func(t *testing.T) {
		dir := t.TempDir()
		writeFiles(t, dir, "000001_init.up.sql", "000001_init.down.sql", "README.md", "notes.up.sql", ".gitkeep")
		require.NoError(t, os.Mkdir(filepath.Join(dir, "000002_dir.up.sql"), 0o755))

		list, err := ListMigrations(dir)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "init", list[0].Name)
	})

	t.Run("missing directory", func(t *testing.T) {
		list, err := ListMigrations("/nonexistent/path/to/migrations")
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := up[:len(up)-len(".up.sql")] + ".down.sql"
		_, err := fs.Stat(migrations.FS, down)
		assert.NoError(t, err, "missing rollback for %s", up)
	}
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "file://migrations", FromDir("migrations").String())
	assert.Equal(t, "embedded:.", FromFS(migrations.FS, "").String())
}
