package player_test

import (
	"testing"
	"time"

	"voxeltrade.ai/internal/ground"
	"voxeltrade.ai/internal/player"
	"voxeltrade.ai/internal/trade"
)

var starter = map[string]int{"PLANK": 20, "COAL": 10}

func TestRoster_JoinAndInventory(t *testing.T) {
	r := player.NewRoster(0, ground.NewStore(0))
	p := r.Join("alice", starter)
	if p.ID == "" || p.ResumeToken == "" {
		t.Fatalf("join: %+v", p)
	}
	if !r.IsOnline(p.ID) {
		t.Fatalf("freshly joined player is offline")
	}

	inv := r.InventoryList(p.ID)
	if len(inv) != 2 || inv[0].Item != "COAL" || inv[1].Item != "PLANK" {
		t.Fatalf("inventory not sorted: %+v", inv)
	}

	if !r.HasItem(p.ID, trade.ItemRecord{Item: "PLANK", Count: 20}) {
		t.Fatalf("HasItem missed the full stack")
	}
	if r.HasItem(p.ID, trade.ItemRecord{Item: "PLANK", Count: 21}) {
		t.Fatalf("HasItem accepted more than held")
	}
}

func TestRoster_RemoveIsAtomic(t *testing.T) {
	r := player.NewRoster(0, ground.NewStore(0))
	p := r.Join("alice", starter)

	if err := r.RemoveItem(p.ID, trade.ItemRecord{Item: "COAL", Count: 11}); err == nil {
		t.Fatalf("removed more than held")
	}
	// The failed remove took nothing.
	got, _ := r.Get(p.ID)
	if got.Inventory["COAL"] != 10 {
		t.Fatalf("partial remove: %+v", got.Inventory)
	}

	if err := r.RemoveItem(p.ID, trade.ItemRecord{Item: "COAL", Count: 10}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, _ = r.Get(p.ID)
	if _, ok := got.Inventory["COAL"]; ok {
		t.Fatalf("emptied stack not deleted: %+v", got.Inventory)
	}
}

func TestRoster_AddItemHonorsCarryLimit(t *testing.T) {
	gr := ground.NewStore(0)
	r := player.NewRoster(25, gr)
	p := r.Join("alice", starter) // 30 starter items, already over the limit

	leftover := r.AddItem(p.ID, trade.ItemRecord{Item: "STONE", Count: 5})
	if leftover.Count != 5 {
		t.Fatalf("accepted items over the carry limit: leftover=%+v", leftover)
	}

	// Make room, then add partially.
	if err := r.RemoveItem(p.ID, trade.ItemRecord{Item: "PLANK", Count: 8}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	leftover = r.AddItem(p.ID, trade.ItemRecord{Item: "STONE", Count: 5})
	if leftover.Count != 2 {
		t.Fatalf("partial accept: leftover=%+v", leftover)
	}

	// The guaranteed fallback puts the rest on the ground.
	r.DropAt(p.ID, leftover)
	if gr.Len() != 1 {
		t.Fatalf("ground: %d stacks", gr.Len())
	}
	drops := gr.At([3]int{})
	if len(drops) != 1 || drops[0].Item != "STONE" || drops[0].Count != 2 {
		t.Fatalf("ground drops: %+v", drops)
	}
}

func TestRoster_ResumeRotatesToken(t *testing.T) {
	r := player.NewRoster(0, ground.NewStore(0))
	p := r.Join("alice", nil)
	r.SetOnline(p.ID, false)

	tok := p.ResumeToken
	rp, ok := r.Resume(tok)
	if !ok || rp.ID != p.ID {
		t.Fatalf("resume: %+v ok=%v", rp, ok)
	}
	if !r.IsOnline(p.ID) {
		t.Fatalf("resumed player still offline")
	}
	if rp.ResumeToken == tok {
		t.Fatalf("resume token was not rotated")
	}
	// Spent tokens never resume again.
	if _, ok := r.Resume(tok); ok {
		t.Fatalf("spent token resumed")
	}
	if _, ok := r.Resume(""); ok {
		t.Fatalf("empty token resumed")
	}
}

func TestRoster_ExportRestoreRoundtrip(t *testing.T) {
	r := player.NewRoster(0, ground.NewStore(0))
	a := r.Join("alice", starter)
	b := r.Join("bob", map[string]int{"GOLD": 3})

	rows := r.Export()
	if len(rows) != 2 {
		t.Fatalf("export: %d rows", len(rows))
	}

	r2 := player.NewRoster(0, ground.NewStore(0))
	r2.Restore(rows)
	for _, id := range []string{a.ID, b.ID} {
		if r2.IsOnline(id) {
			t.Fatalf("restored player %s is online", id)
		}
	}
	got, ok := r2.Get(a.ID)
	if !ok || got.Inventory["PLANK"] != 20 {
		t.Fatalf("restored alice: %+v ok=%v", got, ok)
	}
	if got.ResumeToken == a.ResumeToken {
		t.Fatalf("restore reused the old resume token")
	}
}

func TestRoster_UnknownPlayer(t *testing.T) {
	gr := ground.NewStore(time.Minute)
	r := player.NewRoster(0, gr)

	if _, ok := r.Get("nope"); ok {
		t.Fatalf("Get on unknown player succeeded")
	}
	if err := r.RemoveItem("nope", trade.ItemRecord{Item: "PLANK", Count: 1}); err == nil {
		t.Fatalf("RemoveItem on unknown player succeeded")
	}
	leftover := r.AddItem("nope", trade.ItemRecord{Item: "PLANK", Count: 1})
	if leftover.Count != 1 {
		t.Fatalf("AddItem on unknown player accepted items")
	}
	// DropAt still works: the stack lands at the origin.
	r.DropAt("nope", trade.ItemRecord{Item: "PLANK", Count: 1})
	if gr.Len() != 1 {
		t.Fatalf("fallback drop missing")
	}
}
