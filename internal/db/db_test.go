package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `SELECT id FROM cases WHERE status=? AND summary <> '?' AND author_id=?`
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, `SELECT id FROM cases WHERE status=$1 AND summary <> '?' AND author_id=$2`, Postgres.Rebind(q))
}

func TestConfigDialect(t *testing.T) {
	assert.Equal(t, SQLite, Config{}.Dialect())
	assert.Equal(t, SQLite, Config{Driver: "sqlite"}.Dialect())
	assert.Equal(t, Postgres, Config{Driver: "pgx"}.Dialect())
	assert.Equal(t, Postgres, Config{Driver: "Postgres"}.Dialect())
}

func TestOpenSQLiteCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Ping())
	assert.FileExists(t, filepath.Join(dir, ".crm", "crm.db"))
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"})
	require.Error(t, err)
}
