package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"meshbridge/internal/domain"
)

func TestOpenMigratesSchema(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "bridge.db")

	db, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != schemaVersion {
		t.Fatalf("schema version %d, want %d", version, schemaVersion)
	}

	// Reopening an already migrated database is a no-op.
	reopened, err := Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = reopened.Close()
}

func TestNodeRepoUpsertAndList(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewNodeRepo(db)
	now := time.Now()

	nodes := []domain.Node{
		{Num: 1, LongName: "North Gate", ShortName: "NG", BatteryLevel: 80, EndpointID: "ep-1", LastHeardAt: now.Add(-time.Hour), UpdatedAt: now},
		{Num: 2, LongName: "South Gate", EndpointID: "ep-2", LastHeardAt: now, UpdatedAt: now},
	}
	for _, n := range nodes {
		if err := repo.Upsert(ctx, n); err != nil {
			t.Fatalf("upsert %d: %v", n.Num, err)
		}
	}

	// Second upsert of the same node replaces, not duplicates.
	if err := repo.Upsert(ctx, domain.Node{Num: 1, LongName: "North Gate v2", EndpointID: "ep-1", LastHeardAt: now.Add(time.Minute), UpdatedAt: now}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	listed, err := repo.ListSortedByLastHeard(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(listed))
	}
	if listed[0].Num != 1 {
		t.Fatalf("expected node 1 first after re-upsert, got %d", listed[0].Num)
	}
	if listed[0].LongName != "North Gate v2" {
		t.Fatalf("upsert did not replace: %q", listed[0].LongName)
	}
	if listed[1].LongName != "South Gate" {
		t.Fatalf("unexpected second node: %q", listed[1].LongName)
	}
}
