package store

import (
	"testing"
)

// TestSaveLocalMerge tests that successive partial saves merge per field.
func TestSaveLocalMerge(t *testing.T) {
	s := New(NewMemoryKV())

	if _, err := s.SaveLocal("est-1", map[string]interface{}{"a": 1.0}); err != nil {
		t.Fatalf("SaveLocal failed: %v", err)
	}
	if _, err := s.SaveLocal("est-1", map[string]interface{}{"b": 2.0}); err != nil {
		t.Fatalf("SaveLocal failed: %v", err)
	}

	ent, err := s.GetLocal("est-1")
	if err != nil {
		t.Fatalf("GetLocal failed: %v", err)
	}
	if ent == nil {
		t.Fatal("Expected stored draft")
	}

	if ent.Draft["a"] != 1.0 || ent.Draft["b"] != 2.0 {
		t.Errorf("Expected merged draft {a:1, b:2}, got %v", ent.Draft)
	}
	if ent.Synced {
		t.Error("Expected draft to be unsynced after save")
	}

	ids, err := s.PendingIDs()
	if err != nil {
		t.Fatalf("PendingIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "est-1" {
		t.Errorf("Expected pending index [est-1], got %v", ids)
	}
}

// TestSaveLocalLastWriteWins tests per-field overwrite on repeated saves.
func TestSaveLocalLastWriteWins(t *testing.T) {
	s := New(NewMemoryKV())

	s.SaveLocal("est-1", map[string]interface{}{"askingPrice": 300000.0})
	s.SaveLocal("est-1", map[string]interface{}{"askingPrice": 320000.0})

	ent, _ := s.GetLocal("est-1")
	if ent.Draft["askingPrice"] != 320000.0 {
		t.Errorf("Expected last write to win, got %v", ent.Draft["askingPrice"])
	}
}

// TestSaveLocalIdempotent tests that repeating an identical save does not
// duplicate the pending index entry.
func TestSaveLocalIdempotent(t *testing.T) {
	s := New(NewMemoryKV())

	for i := 0; i < 3; i++ {
		if _, err := s.SaveLocal("est-1", map[string]interface{}{"a": 1.0}); err != nil {
			t.Fatalf("SaveLocal failed: %v", err)
		}
	}

	ids, _ := s.PendingIDs()
	if len(ids) != 1 {
		t.Errorf("Expected a single pending entry, got %v", ids)
	}
}

// TestMarkSynced tests that syncing removes the entity from the pending
// index but keeps the draft.
func TestMarkSynced(t *testing.T) {
	s := New(NewMemoryKV())

	s.SaveLocal("est-1", map[string]interface{}{"a": 1.0})
	if err := s.MarkSynced("est-1"); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	ids, _ := s.PendingIDs()
	if len(ids) != 0 {
		t.Errorf("Expected empty pending index, got %v", ids)
	}

	ent, _ := s.GetLocal("est-1")
	if ent == nil {
		t.Fatal("Expected draft to survive MarkSynced")
	}
	if !ent.Synced {
		t.Error("Expected draft to be flagged synced")
	}
}

// TestMarkSyncedAbsent tests that syncing an unknown entity is a no-op.
func TestMarkSyncedAbsent(t *testing.T) {
	s := New(NewMemoryKV())

	if err := s.MarkSynced("missing"); err != nil {
		t.Errorf("Expected no-op, got %v", err)
	}
}

// TestPendingInsertionOrder tests that the index preserves insertion order.
func TestPendingInsertionOrder(t *testing.T) {
	s := New(NewMemoryKV())

	s.SaveLocal("est-2", map[string]interface{}{"a": 1.0})
	s.SaveLocal("est-1", map[string]interface{}{"a": 1.0})
	s.SaveLocal("est-3", map[string]interface{}{"a": 1.0})

	ids, _ := s.PendingIDs()
	want := []string{"est-2", "est-1", "est-3"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("Expected order %v, got %v", want, ids)
		}
	}
}

// TestSQLiteKVRoundtrip tests the durable KV against a real database file.
func TestSQLiteKVRoundtrip(t *testing.T) {
	kv, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer kv.Close()

	if err := kv.Set("draft/est-1", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := kv.Set("draft/est-1", []byte(`{"x":2}`)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	v, ok, err := kv.Get("draft/est-1")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if string(v) != `{"x":2}` {
		t.Errorf("Expected upserted value, got %s", v)
	}

	kv.Set("draft/est-2", []byte("{}"))
	kv.Set("other/key", []byte("{}"))

	keys, err := kv.Keys("draft/")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Expected 2 draft keys, got %v", keys)
	}

	if err := kv.Delete("draft/est-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := kv.Get("draft/est-1"); ok {
		t.Error("Expected key to be gone after delete")
	}
}

// TestStoreOnSQLite tests the draft store end to end on the durable KV.
func TestStoreOnSQLite(t *testing.T) {
	kv, err := OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer kv.Close()

	s := New(kv)
	s.SaveLocal("est-1", map[string]interface{}{"ownerName": "Dupont"})

	ent, err := s.GetLocal("est-1")
	if err != nil {
		t.Fatalf("GetLocal failed: %v", err)
	}
	if ent.Draft["ownerName"] != "Dupont" {
		t.Errorf("Expected draft to survive sqlite roundtrip, got %v", ent.Draft)
	}
	if !s.HasPending() {
		t.Error("Expected pending entry on sqlite-backed store")
	}
}
