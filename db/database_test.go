package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestOpen(t *testing.T) {
	t.Run("creates parent directories and migrates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
		database, err := Open(path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer database.Close()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("database file not created: %v", err)
		}
		if err := database.Ping(context.Background()); err != nil {
			t.Errorf("Ping() error = %v", err)
		}

		conn, err := NewSQLiteConnection(DefaultConnectionConfig(path))
		if err != nil {
			t.Fatalf("NewSQLiteConnection() error = %v", err)
		}
		version, dirty, err := MigrationVersion(conn)
		if err != nil {
			t.Fatalf("MigrationVersion() error = %v", err)
		}
		if version != 2 || dirty {
			t.Errorf("version = %d dirty = %v, want 2 clean", version, dirty)
		}
	})

	t.Run("reopen is idempotent", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.db")
		for i := 0; i < 2; i++ {
			database, err := Open(path)
			if err != nil {
				t.Fatalf("Open() #%d error = %v", i+1, err)
			}
			database.Close()
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := Open(""); err == nil {
			t.Error("Open(\"\") error = nil")
		}
	})
}

func TestDatabase_Close(t *testing.T) {
	database := openTestDB(t)
	if err := database.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := database.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := database.Ping(context.Background()); err != ErrClosed {
		t.Errorf("Ping() after Close = %v, want ErrClosed", err)
	}
}

func TestMigrateDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	database.Close()

	conn, err := NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		t.Fatalf("NewSQLiteConnection() error = %v", err)
	}
	if err := MigrateDown(conn, 1); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	conn, err = NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		t.Fatalf("NewSQLiteConnection() error = %v", err)
	}
	version, _, err := MigrationVersion(conn)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
}

func TestConnectionConfig_DSN(t *testing.T) {
	dsn := DefaultConnectionConfig("/data/postforge.db").dsn()
	for _, want := range []string{"file:/data/postforge.db?", "busy_timeout%285000%29", "journal_mode%28WAL%29", "foreign_keys%281%29"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}
