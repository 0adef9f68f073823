// Package ground holds dropped item stacks lying in the world. It is the
// guaranteed fallback destination when an inventory cannot accept an item:
// dropping cannot fail, so item conservation holds on every code path.
package ground

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const DefaultTTL = 20 * time.Minute

type Item struct {
	ID        string
	Pos       [3]int
	Item      string
	Count     int
	Meta      map[string]string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	items   map[string]*Item
	byPos   map[[3]int][]string
	nextNum uint64
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:   ttl,
		items: map[string]*Item{},
		byPos: map[[3]int][]string{},
	}
}

// Drop places a stack at pos, merging into an existing same-kind stack
// when possible. Stacks carrying metadata never merge.
func (s *Store) Drop(pos [3]int, item string, count int, meta map[string]string, now time.Time) string {
	if item == "" || count <= 0 {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(meta) == 0 {
		for _, id := range s.byPos[pos] {
			e := s.items[id]
			if e == nil || e.Item != item || len(e.Meta) != 0 {
				continue
			}
			e.Count += count
			if exp := now.Add(s.ttl); exp.After(e.ExpiresAt) {
				e.ExpiresAt = exp
			}
			return e.ID
		}
	}

	s.nextNum++
	id := fmt.Sprintf("G%06d", s.nextNum)
	s.items[id] = &Item{
		ID:        id,
		Pos:       pos,
		Item:      item,
		Count:     count,
		Meta:      meta,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.byPos[pos] = append(s.byPos[pos], id)
	return id
}

// Remove deletes the stack and returns it (for pickup).
func (s *Store) Remove(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.items[id]
	if e == nil {
		return Item{}, false
	}
	delete(s.items, id)
	s.byPos[e.Pos] = removeID(s.byPos[e.Pos], id)
	if len(s.byPos[e.Pos]) == 0 {
		delete(s.byPos, e.Pos)
	}
	return *e, true
}

// At returns copies of the stacks at pos, in drop order.
func (s *Store) At(pos [3]int) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.byPos[pos]))
	for _, id := range s.byPos[pos] {
		if e := s.items[id]; e != nil {
			out = append(out, *e)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Restore loads snapshot stacks, keeping their ids and expiry. The id
// counter advances past the highest restored id so new drops never collide.
func (s *Store) Restore(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range items {
		if e.ID == "" || e.Item == "" || e.Count <= 0 {
			continue
		}
		cp := e
		s.items[cp.ID] = &cp
		s.byPos[cp.Pos] = append(s.byPos[cp.Pos], cp.ID)
		if n := idNum(cp.ID); n > s.nextNum {
			s.nextNum = n
		}
	}
}

func idNum(id string) uint64 {
	var n uint64
	if _, err := fmt.Sscanf(id, "G%d", &n); err != nil {
		return 0
	}
	return n
}

// Export returns copies of every stack, sorted by id, for snapshots.
func (s *Store) Export() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CleanupExpired removes stacks past their TTL and returns them, sorted by
// id for deterministic logging.
func (s *Store) CleanupExpired(now time.Time) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]Item, 0)
	for id, e := range s.items {
		if now.Before(e.ExpiresAt) {
			continue
		}
		expired = append(expired, *e)
		delete(s.items, id)
		s.byPos[e.Pos] = removeID(s.byPos[e.Pos], id)
		if len(s.byPos[e.Pos]) == 0 {
			delete(s.byPos, e.Pos)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired
}

func removeID(ids []string, id string) []string {
	for i := 0; i < len(ids); i++ {
		if ids[i] != id {
			continue
		}
		copy(ids[i:], ids[i+1:])
		return ids[:len(ids)-1]
	}
	return ids
}
