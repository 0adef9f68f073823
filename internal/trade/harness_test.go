package trade_test

import (
	"fmt"
	"log"
	"os"
	"sync"

	"voxeltrade.ai/internal/protocol"
	"voxeltrade.ai/internal/trade"
)

// fakeWorld backs the coordinator in tests: item->count inventories with an
// optional per-player carry limit, a recorded drop pile, and in-memory
// event delivery.
type fakeWorld struct {
	mu     sync.Mutex
	inv    map[string]map[string]int
	limits map[string]int
	drops  map[string][]trade.ItemRecord

	offline  map[string]bool
	events   map[string][]protocol.Event
	feedback map[string][]string
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		inv:      map[string]map[string]int{},
		limits:   map[string]int{},
		drops:    map[string][]trade.ItemRecord{},
		offline:  map[string]bool{},
		events:   map[string][]protocol.Event{},
		feedback: map[string][]string{},
	}
}

func (w *fakeWorld) give(playerID, item string, count int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inv[playerID] == nil {
		w.inv[playerID] = map[string]int{}
	}
	w.inv[playerID][item] += count
}

func (w *fakeWorld) count(playerID, item string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inv[playerID][item]
}

func (w *fakeWorld) totalLocked(playerID string) int {
	n := 0
	for _, c := range w.inv[playerID] {
		n += c
	}
	return n
}

func (w *fakeWorld) HasItem(playerID string, rec trade.ItemRecord) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return rec.Count > 0 && w.inv[playerID][rec.Item] >= rec.Count
}

func (w *fakeWorld) RemoveItem(playerID string, rec trade.ItemRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec.Count <= 0 || w.inv[playerID][rec.Item] < rec.Count {
		return fmt.Errorf("%s does not hold %dx %s", playerID, rec.Count, rec.Item)
	}
	w.inv[playerID][rec.Item] -= rec.Count
	return nil
}

func (w *fakeWorld) AddItem(playerID string, rec trade.ItemRecord) trade.ItemRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec.IsZero() {
		return rec
	}
	accept := rec.Count
	if limit := w.limits[playerID]; limit > 0 {
		if room := limit - w.totalLocked(playerID); room < accept {
			accept = room
		}
	}
	if accept <= 0 {
		return rec
	}
	if w.inv[playerID] == nil {
		w.inv[playerID] = map[string]int{}
	}
	w.inv[playerID][rec.Item] += accept
	leftover := rec.Clone()
	leftover.Count = rec.Count - accept
	if leftover.Count <= 0 {
		return trade.ItemRecord{}
	}
	return leftover
}

func (w *fakeWorld) DropAt(playerID string, rec trade.ItemRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.drops[playerID] = append(w.drops[playerID], rec.Clone())
}

func (w *fakeWorld) IsOnline(playerID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.offline[playerID]
}

func (w *fakeWorld) Notify(playerID string, ev protocol.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events[playerID] = append(w.events[playerID], ev)
}

func (w *fakeWorld) PlayFeedback(playerID, kind string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.feedback[playerID] = append(w.feedback[playerID], kind)
}

// eventsOf returns the player's received events of the given type.
func (w *fakeWorld) eventsOf(playerID, typ string) []protocol.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []protocol.Event
	for _, ev := range w.events[playerID] {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

// conserved sums one item kind across inventories, the drop piles, and the
// given escrow snapshots.
func (w *fakeWorld) conserved(item string, snaps ...trade.Snapshot) int {
	w.mu.Lock()
	total := 0
	for _, inv := range w.inv {
		total += inv[item]
	}
	for _, pile := range w.drops {
		for _, rec := range pile {
			if rec.Item == item {
				total += rec.Count
			}
		}
	}
	w.mu.Unlock()
	for _, snap := range snaps {
		for _, rec := range append(snap.InitiatorSlots, snap.TargetSlots...) {
			if rec.Item == item {
				total += rec.Count
			}
		}
	}
	return total
}

func newTestCoordinator(w *fakeWorld, cfg trade.Config) *trade.Coordinator {
	logger := log.New(os.Stdout, "[test] ", 0)
	return trade.NewCoordinator(cfg, w, w, w, logger)
}
