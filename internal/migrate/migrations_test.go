package migrate

import (
	"strings"
	"testing"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	v1, err := Migrate(conn, db.SQLite)
	if err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	v2, err := Migrate(conn, db.SQLite)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if v1 != v2 || v1 < 2 {
		t.Fatalf("versions %d then %d", v1, v2)
	}

	for _, table := range []string{"users", "categories", "channels", "category_access", "cases", "case_status_history", "comments"} {
		var name string
		if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s: %v", table, err)
		}
	}
	for _, index := range []string{"idx_cases_applicant_name", "idx_cases_open_responsible"} {
		var name string
		if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name=?`, index).Scan(&name); err != nil {
			t.Fatalf("index %s: %v", index, err)
		}
	}
}

func TestMigrationsSorted(t *testing.T) {
	for _, d := range []db.Dialect{db.SQLite, db.Postgres} {
		ms, err := loadMigrations(d)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		if len(ms) == 0 {
			t.Fatalf("%s: no migrations", d)
		}
		for i := 1; i < len(ms); i++ {
			if ms[i-1].Version >= ms[i].Version {
				t.Fatalf("%s: %s before %s", d, ms[i-1].Name, ms[i].Name)
			}
		}
	}
}

func TestDialectOverrideWins(t *testing.T) {
	lite, err := loadMigrations(db.SQLite)
	if err != nil {
		t.Fatal(err)
	}
	pg, err := loadMigrations(db.Postgres)
	if err != nil {
		t.Fatal(err)
	}
	if len(lite) != len(pg) {
		t.Fatalf("dialects disagree on versions: %d vs %d", len(lite), len(pg))
	}
	find := func(ms []Migration, v int) Migration {
		for _, m := range ms {
			if m.Version == v {
				return m
			}
		}
		t.Fatalf("version %d missing", v)
		return Migration{}
	}
	if m := find(lite, 2); m.Dialect != "" || strings.Contains(m.UpSQL, "gin_trgm_ops") {
		t.Fatalf("sqlite picked %s", m.Name)
	}
	if m := find(pg, 2); m.Dialect != db.Postgres || !strings.Contains(m.UpSQL, "pg_trgm") {
		t.Fatalf("postgres picked %s", m.Name)
	}
	if m := find(pg, 1); m.Dialect != "" {
		t.Fatalf("portable step should serve postgres, got %s", m.Name)
	}
}

func TestSplitName(t *testing.T) {
	cases := []struct {
		name    string
		version int
		dialect db.Dialect
		wantErr bool
	}{
		{name: "001_init.sql", version: 1},
		{name: "002_case_lookup.postgres.sql", version: 2, dialect: db.Postgres},
		{name: "003_x.sqlite.sql", version: 3, dialect: db.SQLite},
		{name: "004_x.mysql.sql", wantErr: true},
		{name: "init.sql", wantErr: true},
		{name: "005_x.txt", wantErr: true},
	}
	for _, tc := range cases {
		v, d, err := splitName(tc.name)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if v != tc.version || d != tc.dialect {
			t.Fatalf("%s: got %d %q", tc.name, v, d)
		}
	}
}
