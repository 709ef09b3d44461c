package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(context.Background(), filepath.Join(t.TempDir(), "secrets.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestOpen(t *testing.T) {
	conn := openTestDB(t)

	for _, table := range []string{"users", "secrets", "sessions"} {
		var count int
		if err := conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("Could not query %s table: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := openTestDB(t)

	if err := Migrate(context.Background(), conn); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestOpenUnreachablePath(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "secrets.db"))
	if err == nil {
		t.Fatal("Open succeeded for a path whose directory does not exist")
	}
}
