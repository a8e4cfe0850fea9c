package domain

import (
	"testing"
	"time"
)

func TestNodeStoreUpsertMergesSparseUpdates(t *testing.T) {
	s := NewNodeStore()

	s.Upsert(Node{Num: 1, LongName: "Base Station", ShortName: "BASE", BatteryLevel: 80})
	// Telemetry-only update must not erase the names.
	s.Upsert(Node{Num: 1, BatteryLevel: 75})

	node, ok := s.Get(1)
	if !ok {
		t.Fatal("node missing")
	}
	if node.LongName != "Base Station" || node.ShortName != "BASE" {
		t.Fatalf("names lost on sparse update: %+v", node)
	}
	if node.BatteryLevel != 75 {
		t.Fatalf("battery not updated: %d", node.BatteryLevel)
	}
}

func TestNodeStoreRecentOrdering(t *testing.T) {
	s := NewNodeStore()
	base := time.Now()

	s.Upsert(Node{Num: 1, LastHeardAt: base.Add(-3 * time.Hour)})
	s.Upsert(Node{Num: 2, LastHeardAt: base.Add(-1 * time.Hour)})
	s.Upsert(Node{Num: 3, LastHeardAt: base.Add(-2 * time.Hour)})

	recent := s.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(recent))
	}
	if recent[0].Num != 2 || recent[1].Num != 3 {
		t.Fatalf("wrong order: %d, %d", recent[0].Num, recent[1].Num)
	}
}

func TestNodeStoreLoadSeedsInventory(t *testing.T) {
	s := NewNodeStore()
	s.Load([]Node{{Num: 10, LongName: "Restored"}, {Num: 11}})

	if s.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", s.Len())
	}
	node, ok := s.Get(10)
	if !ok || node.LongName != "Restored" {
		t.Fatalf("seeded node wrong: %+v", node)
	}
}
