package db

import (
	"path/filepath"
	"testing"
)

func TestOpenCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"sandbox_events", "executions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	// Migrations are idempotent.
	db.Close()
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	reopened.Close()
}

func TestNewTestDB(t *testing.T) {
	db, err := NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("INSERT INTO sandbox_events (sandbox_id, event, status) VALUES ('a', 'created', 'creating')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sandbox_events").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}
}
