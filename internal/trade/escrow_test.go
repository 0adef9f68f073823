package trade_test

import (
	"testing"

	"voxeltrade.ai/internal/trade"
)

func TestEscrow_PutTakeSlots(t *testing.T) {
	e := trade.NewEscrow("alice", 3)
	if e.Cap() != 3 || e.Owner() != "alice" {
		t.Fatalf("unexpected escrow: cap=%d owner=%s", e.Cap(), e.Owner())
	}

	s0, ok := e.Put(trade.ItemRecord{Item: "PLANK", Count: 4})
	if !ok || s0 != 0 {
		t.Fatalf("first put: slot=%d ok=%v", s0, ok)
	}
	s1, ok := e.Put(trade.ItemRecord{Item: "COAL", Count: 2})
	if !ok || s1 != 1 {
		t.Fatalf("second put: slot=%d ok=%v", s1, ok)
	}

	rec, ok := e.Take(0)
	if !ok || rec.Item != "PLANK" || rec.Count != 4 {
		t.Fatalf("take: %+v ok=%v", rec, ok)
	}
	if _, ok := e.Take(0); ok {
		t.Fatalf("take on empty slot should fail")
	}
	if _, ok := e.Take(99); ok {
		t.Fatalf("take out of range should fail")
	}

	// The freed slot is reused first.
	s2, ok := e.Put(trade.ItemRecord{Item: "STONE", Count: 1})
	if !ok || s2 != 0 {
		t.Fatalf("put after take: slot=%d ok=%v", s2, ok)
	}
	if _, ok := e.Put(trade.ItemRecord{Item: "BERRIES", Count: 1}); !ok {
		t.Fatalf("third slot should be free")
	}
	if _, ok := e.Put(trade.ItemRecord{Item: "PLANK", Count: 1}); ok {
		t.Fatalf("put on full escrow should fail")
	}

	items := e.Items()
	if len(items) != 3 {
		t.Fatalf("items: got %d, want 3", len(items))
	}

	e.Clear()
	if !e.Empty() || len(e.Items()) != 0 {
		t.Fatalf("escrow not empty after Clear")
	}
}

func TestEscrow_HoldsClones(t *testing.T) {
	e := trade.NewEscrow("alice", 2)
	src := trade.ItemRecord{Item: "IRON_SWORD", Count: 1, Meta: map[string]string{"enchant": "sharpness_2"}}
	if _, ok := e.Put(src); !ok {
		t.Fatalf("put failed")
	}

	// Mutating the source after staging must not reach the escrow.
	src.Meta["enchant"] = "tampered"
	got := e.Slots()[0]
	if got.Meta["enchant"] != "sharpness_2" {
		t.Fatalf("escrow shares memory with caller: %+v", got)
	}

	// Mutating a returned copy must not reach the escrow either.
	got.Meta["enchant"] = "tampered"
	if e.Slots()[0].Meta["enchant"] != "sharpness_2" {
		t.Fatalf("Slots returned a live reference")
	}
}
