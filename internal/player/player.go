package player

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxeltrade.ai/internal/ground"
	"voxeltrade.ai/internal/protocol"
	"voxeltrade.ai/internal/trade"
)

// Player is one connected (or recently connected) participant. Inventories
// are item->count maps; record metadata rides on escrowed/dropped stacks,
// not in here.
type Player struct {
	ID   string
	Name string
	Pos  [3]int

	// ResumeToken is a transport-level token used for reconnects.
	// It is intentionally not persisted.
	ResumeToken string

	Inventory map[string]int
	Online    bool
}

func (p *Player) total() int {
	n := 0
	for _, c := range p.Inventory {
		n += c
	}
	return n
}

// Roster owns all player state and implements the inventory and presence
// capabilities the trade coordinator consumes. One lock guards the maps;
// every operation is bounded and does no I/O.
type Roster struct {
	mu         sync.Mutex
	players    map[string]*Player
	carryLimit int // total items per player, 0 = unlimited

	ground *ground.Store
	now    func() time.Time
}

func NewRoster(carryLimit int, gr *ground.Store) *Roster {
	return &Roster{
		players:    map[string]*Player{},
		carryLimit: carryLimit,
		ground:     gr,
		now:        time.Now,
	}
}

// Join creates a fresh player with the given starter items and marks them
// online. Player identity is a UUID; clients never pick their own id.
func (r *Roster) Join(name string, starter map[string]int) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &Player{
		ID:          uuid.NewString(),
		Name:        normalizeName(name),
		ResumeToken: newResumeToken(),
		Inventory:   map[string]int{},
		Online:      true,
	}
	for _, item := range sortedKeys(starter) {
		if n := starter[item]; item != "" && n > 0 {
			p.Inventory[item] += n
		}
	}
	r.players[p.ID] = p
	return p
}

// Resume reattaches by resume token and rotates it.
func (r *Roster) Resume(token string) (*Player, bool) {
	if token == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := r.players[id]
		if p.ResumeToken != token {
			continue
		}
		p.ResumeToken = newResumeToken()
		p.Online = true
		return p, true
	}
	return nil, false
}

func (r *Roster) SetOnline(playerID string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.players[playerID]; p != nil {
		p.Online = online
	}
}

func (r *Roster) IsOnline(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.players[playerID]
	return p != nil && p.Online
}

func (r *Roster) Get(playerID string) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.players[playerID]
	if p == nil {
		return Player{}, false
	}
	return r.copyLocked(p), true
}

func (r *Roster) copyLocked(p *Player) Player {
	out := *p
	out.Inventory = make(map[string]int, len(p.Inventory))
	for k, v := range p.Inventory {
		out.Inventory[k] = v
	}
	return out
}

// InventoryList returns the player's inventory as sorted wire stacks.
func (r *Roster) InventoryList(playerID string) []protocol.ItemStack {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.players[playerID]
	if p == nil {
		return nil
	}
	out := make([]protocol.ItemStack, 0, len(p.Inventory))
	for item, c := range p.Inventory {
		if c <= 0 {
			continue
		}
		out = append(out, protocol.ItemStack{Item: item, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// HasItem reports whether the player holds the full stack.
func (r *Roster) HasItem(playerID string, rec trade.ItemRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.players[playerID]
	return p != nil && rec.Count > 0 && p.Inventory[rec.Item] >= rec.Count
}

// RemoveItem atomically checks and removes the stack.
func (r *Roster) RemoveItem(playerID string, rec trade.ItemRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.players[playerID]
	if p == nil || rec.Count <= 0 || p.Inventory[rec.Item] < rec.Count {
		return fmt.Errorf("player %s does not hold %dx %s", playerID, rec.Count, rec.Item)
	}
	p.Inventory[rec.Item] -= rec.Count
	if p.Inventory[rec.Item] <= 0 {
		delete(p.Inventory, rec.Item)
	}
	return nil
}

// AddItem inserts as much of the stack as the carry limit allows and
// returns the leftover. Unknown players accept nothing.
func (r *Roster) AddItem(playerID string, rec trade.ItemRecord) trade.ItemRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.players[playerID]
	if p == nil || rec.IsZero() {
		return rec
	}
	accept := rec.Count
	if r.carryLimit > 0 {
		if room := r.carryLimit - p.total(); room < accept {
			accept = room
		}
	}
	if accept <= 0 {
		return rec
	}
	p.Inventory[rec.Item] += accept
	leftover := rec.Clone()
	leftover.Count = rec.Count - accept
	if leftover.Count <= 0 {
		return trade.ItemRecord{}
	}
	return leftover
}

// DropAt places the stack on the ground at the player's last known
// position. This is the guaranteed fallback: it cannot fail.
func (r *Roster) DropAt(playerID string, rec trade.ItemRecord) {
	if rec.IsZero() {
		return
	}
	pos := [3]int{}
	r.mu.Lock()
	if p := r.players[playerID]; p != nil {
		pos = p.Pos
	}
	r.mu.Unlock()
	r.ground.Drop(pos, rec.Item, rec.Count, rec.Meta, r.now())
}

// Row is the persisted shape of a player, shared with the stores.
type Row struct {
	ID        string
	Name      string
	Pos       [3]int
	Inventory map[string]int
}

// Export returns every player as persistence rows, sorted by id.
func (r *Roster) Export() []Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Row, 0, len(r.players))
	for _, id := range sortedPlayerIDs(r.players) {
		p := r.players[id]
		inv := make(map[string]int, len(p.Inventory))
		for k, v := range p.Inventory {
			inv[k] = v
		}
		out = append(out, Row{ID: p.ID, Name: p.Name, Pos: p.Pos, Inventory: inv})
	}
	return out
}

// Restore loads persisted players; they start offline with fresh tokens.
func (r *Roster) Restore(rows []Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		inv := make(map[string]int, len(row.Inventory))
		for k, v := range row.Inventory {
			if k != "" && v > 0 {
				inv[k] = v
			}
		}
		r.players[row.ID] = &Player{
			ID:          row.ID,
			Name:        row.Name,
			Pos:         row.Pos,
			ResumeToken: newResumeToken(),
			Inventory:   inv,
		}
	}
}

func newResumeToken() string {
	return "rt_" + uuid.NewString()
}

func normalizeName(name string) string {
	if name == "" {
		return "player"
	}
	if len(name) > 32 {
		return name[:32]
	}
	return name
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedPlayerIDs(m map[string]*Player) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
