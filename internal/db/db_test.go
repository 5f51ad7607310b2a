package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestDialectFor(t *testing.T) {
	tests := []struct {
		dsn  string
		want Dialect
	}{
		{"postgres://user:pw@localhost:5432/companion", Postgres},
		{"POSTGRESQL://localhost/companion", Postgres},
		{"companion.db", SQLite},
		{"file:companion.db?cache=shared", SQLite},
		{"", SQLite},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			if got := DialectFor(tt.dsn); got != tt.want {
				t.Errorf("DialectFor(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	query := "UPDATE sessions SET expires_at = ? WHERE sid = ?"

	pg := &DB{Dialect: Postgres}
	if got := pg.Rebind(query); got != "UPDATE sessions SET expires_at = $1 WHERE sid = $2" {
		t.Errorf("unexpected postgres query: %s", got)
	}
	lite := &DB{Dialect: SQLite}
	if got := lite.Rebind(query); got != query {
		t.Errorf("expected sqlite query unchanged, got %s", got)
	}
}

func TestOpenAndMigrateSQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, filepath.Join(t.TempDir(), "companion.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	defer conn.Close()

	if conn.Dialect != SQLite {
		t.Fatalf("expected sqlite dialect, got %q", conn.Dialect)
	}
	for i := 0; i < 2; i++ {
		if err := conn.Migrate(ctx); err != nil {
			t.Fatalf("Failed to migrate (run %d): %v", i+1, err)
		}
	}

	var name string
	err = conn.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'sessions'").Scan(&name)
	if err != nil {
		t.Fatalf("expected sessions table: %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	var d *DB
	if err := d.Close(); err != nil {
		t.Errorf("expected nil DB close to be a no-op, got %v", err)
	}
}
