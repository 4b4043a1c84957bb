package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenAndMigrate(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	// Verify database file was created.
	dbPath := filepath.Join(dir, "callbridge.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	// Verify WAL mode is active.
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("querying journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	// Verify the kv table exists.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='kv_store'").Scan(&count); err != nil {
		t.Fatalf("checking kv_store table: %v", err)
	}
	if count != 1 {
		t.Error("kv_store table not found")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	db1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	db1.Close()

	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	db2.Close()
}

func TestKVSetGetDelete(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	// Absent key.
	_, ok, err := db.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get(missing) error: %v", err)
	}
	if ok {
		t.Error("expected missing key to report absent")
	}

	// Set then get.
	if err := db.Set(ctx, "k1", "v1"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	got, ok, err := db.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get(k1) error: %v", err)
	}
	if !ok || got != "v1" {
		t.Errorf("Get(k1) = (%q, %v), want (v1, true)", got, ok)
	}

	// Overwrite.
	if err := db.Set(ctx, "k1", "v2"); err != nil {
		t.Fatalf("Set() overwrite error: %v", err)
	}
	got, _, _ = db.Get(ctx, "k1")
	if got != "v2" {
		t.Errorf("Get(k1) after overwrite = %q, want v2", got)
	}

	// Delete, twice (idempotent).
	if err := db.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := db.Delete(ctx, "k1"); err != nil {
		t.Fatalf("second Delete() error: %v", err)
	}
	_, ok, _ = db.Get(ctx, "k1")
	if ok {
		t.Error("expected k1 absent after delete")
	}
}
