package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDuckDBAdapter_ConnectInMemory(t *testing.T) {
	ctx := context.Background()
	adapter := NewDuckDBAdapter()

	err := adapter.Connect(ctx, Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to connect to in-memory DuckDB: %v", err)
	}
	defer adapter.Close()
}

func TestDuckDBAdapter_ConnectFileBased(t *testing.T) {
	ctx := context.Background()
	adapter := NewDuckDBAdapter()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.duckdb")

	err := adapter.Connect(ctx, Config{Path: dbPath})
	if err != nil {
		t.Fatalf("failed to connect to file-based DuckDB: %v", err)
	}
	defer adapter.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestDuckDBAdapter_ExecAndQuery(t *testing.T) {
	ctx := context.Background()
	adapter := NewDuckDBAdapter()

	if err := adapter.Connect(ctx, Config{Path: ":memory:"}); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer adapter.Close()

	if err := adapter.Exec(ctx, `CREATE TABLE t (id INTEGER, name VARCHAR)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if err := adapter.Exec(ctx, `INSERT INTO t VALUES (?, ?)`, 1, "alpha"); err != nil {
		t.Fatalf("failed to insert with args: %v", err)
	}

	var name string
	if err := adapter.QueryRow(ctx, `SELECT name FROM t WHERE id = ?`, 1).Scan(&name); err != nil {
		t.Fatalf("failed to query row: %v", err)
	}
	if name != "alpha" {
		t.Errorf("expected name 'alpha', got %q", name)
	}
}

func TestDuckDBAdapter_GetTableMetadata(t *testing.T) {
	ctx := context.Background()
	adapter := NewDuckDBAdapter()

	if err := adapter.Connect(ctx, Config{Path: ":memory:"}); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer adapter.Close()

	if err := adapter.Exec(ctx, `CREATE TABLE meta_t (id INTEGER NOT NULL, note VARCHAR)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	meta, err := adapter.GetTableMetadata(ctx, "meta_t")
	if err != nil {
		t.Fatalf("failed to get metadata: %v", err)
	}
	if len(meta.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(meta.Columns))
	}
	if meta.Columns[0].Name != "id" || meta.Columns[0].Nullable {
		t.Errorf("unexpected first column: %+v", meta.Columns[0])
	}
	if !meta.Columns[1].Nullable {
		t.Errorf("expected note to be nullable")
	}
}

func TestDuckDBAdapter_ListTables(t *testing.T) {
	ctx := context.Background()
	adapter := NewDuckDBAdapter()

	if err := adapter.Connect(ctx, Config{Path: ":memory:"}); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer adapter.Close()

	for _, stmt := range []string{
		`CREATE TABLE b_table (id INTEGER)`,
		`CREATE TABLE a_table (id INTEGER)`,
		`CREATE VIEW v_a AS SELECT * FROM a_table`,
	} {
		if err := adapter.Exec(ctx, stmt); err != nil {
			t.Fatalf("failed to exec %q: %v", stmt, err)
		}
	}

	tables, err := adapter.ListTables(ctx)
	if err != nil {
		t.Fatalf("failed to list tables: %v", err)
	}
	want := []string{"a_table", "b_table", "v_a"}
	if len(tables) != len(want) {
		t.Fatalf("expected %v, got %v", want, tables)
	}
	for i := range want {
		if tables[i] != want[i] {
			t.Errorf("expected table %q at %d, got %q", want[i], i, tables[i])
		}
	}
}
