package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/db"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Migration is one schema step. A step may ship a portable file
// (NNN_name.sql) and per-dialect overrides (NNN_name.<dialect>.sql); the
// override wins for its dialect.
type Migration struct {
	Version int
	Name    string
	Dialect db.Dialect
	UpSQL   string
}

// splitName parses "002_case_lookup.postgres.sql" into its version and the
// dialect suffix, which is empty for portable files.
func splitName(name string) (int, db.Dialect, error) {
	var v int
	if _, err := fmt.Sscanf(name, "%d_", &v); err != nil {
		return 0, "", fmt.Errorf("invalid migration filename %s: %w", name, err)
	}
	base := strings.TrimSuffix(name, ".sql")
	if base == name {
		return 0, "", fmt.Errorf("invalid migration filename %s: want .sql", name)
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		d := db.Dialect(base[i+1:])
		if d != db.SQLite && d != db.Postgres {
			return 0, "", fmt.Errorf("migration %s: unknown dialect %q", name, d)
		}
		return v, d, nil
	}
	return v, "", nil
}

// loadMigrations returns the steps that apply to dialect, ordered by version.
func loadMigrations(dialect db.Dialect) ([]Migration, error) {
	files, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	byVersion := map[int]Migration{}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		v, d, err := splitName(f.Name())
		if err != nil {
			return nil, err
		}
		if d != "" && d != dialect {
			continue
		}
		prev, seen := byVersion[v]
		switch {
		case seen && prev.Dialect == d:
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev.Name, f.Name(), v)
		case seen && prev.Dialect != "":
			continue
		}
		data, err := migrationsFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, err
		}
		byVersion[v] = Migration{Version: v, Name: f.Name(), Dialect: d, UpSQL: string(data)}
	}
	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrate applies embedded migrations in order and returns the resulting schema version.
func Migrate(conn *sql.DB, dialect db.Dialect) (int, error) {
	migrations, err := loadMigrations(dialect)
	if err != nil {
		return 0, err
	}
	tx, err := conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}

	var currentVersion int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&currentVersion)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return 0, fmt.Errorf("init schema_version: %w", err)
		}
		currentVersion = 0
	} else if err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		if _, err := tx.Exec(m.UpSQL); err != nil {
			return 0, fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(dialect.Rebind(`UPDATE schema_version SET version=?`), m.Version); err != nil {
			return 0, fmt.Errorf("update schema_version: %w", err)
		}
		currentVersion = m.Version
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return currentVersion, nil
}
