package trade

// Escrow is one participant's staging area inside a session. Slots are
// ordered and fixed in number. Escrow is not safe for concurrent use;
// the owning session's lock guards all access.
type Escrow struct {
	owner string
	slots []ItemRecord
}

func NewEscrow(owner string, slots int) *Escrow {
	if slots <= 0 {
		slots = 1
	}
	return &Escrow{owner: owner, slots: make([]ItemRecord, slots)}
}

func (e *Escrow) Owner() string { return e.owner }
func (e *Escrow) Cap() int      { return len(e.slots) }

// Put places a clone of rec into the first free slot.
func (e *Escrow) Put(rec ItemRecord) (slot int, ok bool) {
	for i := range e.slots {
		if e.slots[i].IsZero() {
			e.slots[i] = rec.Clone()
			return i, true
		}
	}
	return -1, false
}

// Take empties the slot and returns its record.
func (e *Escrow) Take(slot int) (ItemRecord, bool) {
	if slot < 0 || slot >= len(e.slots) || e.slots[slot].IsZero() {
		return ItemRecord{}, false
	}
	rec := e.slots[slot]
	e.slots[slot] = ItemRecord{}
	return rec, true
}

// Items returns the staged records in slot order, skipping empty slots.
func (e *Escrow) Items() []ItemRecord {
	out := make([]ItemRecord, 0, len(e.slots))
	for i := range e.slots {
		if e.slots[i].IsZero() {
			continue
		}
		out = append(out, e.slots[i].Clone())
	}
	return out
}

// Slots returns a copy of every slot, empties included, for rendering.
func (e *Escrow) Slots() []ItemRecord {
	out := make([]ItemRecord, len(e.slots))
	for i := range e.slots {
		out[i] = e.slots[i].Clone()
	}
	return out
}

func (e *Escrow) Empty() bool {
	for i := range e.slots {
		if !e.slots[i].IsZero() {
			return false
		}
	}
	return true
}

func (e *Escrow) Clear() {
	for i := range e.slots {
		e.slots[i] = ItemRecord{}
	}
}
