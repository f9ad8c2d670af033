package db

import (
	"context"
	"testing"
)

// TestMigrateReopenKeepsData ensures reopening an existing database reruns
// Migrate as a no-op and leaves stored rows intact.
func TestMigrateReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/test.db"

	d, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := d.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	d, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	u, ok, err := d.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !ok || u.Username != "alice" {
		t.Fatalf("user after reopen: ok=%v u=%+v", ok, u)
	}

	var n int
	if err := d.sql.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Fatalf("schema_migrations rows = %d, want 1", n)
	}
}
