package shared

import (
	"path/filepath"
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		for _, m := range migrations {
			if m.Up == "" {
				t.Errorf("migration version %d missing up SQL", m.Version)
			}
			if m.Down == "" {
				t.Errorf("migration version %d missing down SQL", m.Version)
			}
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}
		if count == 0 {
			t.Error("expected at least one migration to be applied")
		}

		for _, table := range []string{"load", "url", "metadata"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		var newCount int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&newCount)
		if err != nil {
			t.Fatalf("failed to query schema_migrations after rollback: %v", err)
		}
		if newCount >= count {
			t.Errorf("expected migration count to decrease after rollback, got %d (was %d)", newCount, count)
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations first time: %v", err)
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations second time: %v", err)
		}

		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
		if err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}

		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})
}

func TestParseMigrationName(t *testing.T) {
	tc := []struct {
		file      string
		version   int
		name      string
		direction string
		ok        bool
	}{
		{"0001_create_cache_tables_up.sql", 1, "create_cache_tables", "up", true},
		{"0002_add_fetch_indexes_down.sql", 2, "add_fetch_indexes", "down", true},
		{"README.md", 0, "", "", false},
		{"abcd_create_up.sql", 0, "", "", false},
		{"0003_sideways.sql", 0, "", "", false},
	}

	for _, tt := range tc {
		t.Run(tt.file, func(t *testing.T) {
			version, name, direction, ok := parseMigrationName(tt.file)
			if ok != tt.ok || version != tt.version || name != tt.name || direction != tt.direction {
				t.Errorf("parseMigrationName(%q) = (%d, %q, %q, %v)", tt.file, version, name, direction, ok)
			}
		})
	}
}

func TestMigrationStatus(t *testing.T) {
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	states, err := MigrationStatus(db)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	for _, s := range states {
		if s.Applied {
			t.Errorf("migration %d should be pending on a fresh database", s.Version)
		}
	}

	if err := RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	states, err = MigrationStatus(db)
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	for _, s := range states {
		if !s.Applied {
			t.Errorf("migration %d should be applied", s.Version)
		}
	}
}

func TestOpenCacheDatabase(t *testing.T) {
	t.Run("applies embedded migrations to a file database", func(t *testing.T) {
		db, err := OpenCacheDatabase(DatabaseConfig{Path: filepath.Join(t.TempDir(), "cache.db")})
		if err != nil {
			t.Fatalf("OpenCacheDatabase failed: %v", err)
		}
		defer db.Close()

		for _, index := range []string{"idx_load_last_fetched", "idx_load_last_updated", "idx_url_last_updated", "idx_metadata_last_updated"} {
			var name string
			err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?", index).Scan(&name)
			if err != nil {
				t.Errorf("index %s missing: %v", index, err)
			}
		}

		states, err := MigrationStatus(db)
		if err != nil {
			t.Fatalf("MigrationStatus failed: %v", err)
		}
		for _, s := range states {
			if !s.Applied {
				t.Errorf("migration %d (%s) should be applied", s.Version, s.Name)
			}
		}
	})

	t.Run("reopening is a no-op", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache.db")
		for range 2 {
			db, err := OpenCacheDatabase(DatabaseConfig{Path: path})
			if err != nil {
				t.Fatalf("OpenCacheDatabase failed: %v", err)
			}
			db.Close()
		}
	})
}

func TestExecMigration(t *testing.T) {
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE versions (version INTEGER)"); err != nil {
		t.Fatalf("failed to create bookkeeping table: %v", err)
	}

	script := "-- first a; then b\nCREATE TABLE a (id INTEGER); -- trailing; comment\nCREATE TABLE b (id INTEGER);\n"
	if err := execMigration(db, script, "INSERT INTO versions (version) VALUES (?)", 1); err != nil {
		t.Fatalf("semicolons inside comments should not split statements: %v", err)
	}

	for _, table := range []string{"a", "b"} {
		if _, err := db.Exec("SELECT 1 FROM " + table); err != nil {
			t.Errorf("table %s should exist: %v", table, err)
		}
	}
}

func TestRemoveComments(t *testing.T) {
	tc := []struct {
		name   string
		script string
		want   string
	}{
		{name: "whole line", script: "-- note; more\nSELECT 1;", want: "SELECT 1;"},
		{name: "trailing", script: "SELECT 1; -- done", want: "SELECT 1;"},
		{name: "blank lines", script: "\n\nSELECT 1;\n\n", want: "SELECT 1;"},
		{name: "only comments", script: "-- a\n-- b", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := removeComments(tt.script); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
