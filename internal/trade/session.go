package trade

import (
	"sync"
	"time"

	"voxeltrade.ai/internal/protocol"
)

type State string

const (
	StateNegotiating State = "NEGOTIATING"
	StateCompleted   State = "COMPLETED"
	StateCancelled   State = "CANCELLED"
)

// Inventory is the capability a session uses to move items in and out of
// the participants' real inventories. Implementations must be safe for
// concurrent use, bounded (no I/O on the hot path), and must never call
// back into the trade package.
type Inventory interface {
	HasItem(playerID string, rec ItemRecord) bool
	// RemoveItem atomically checks and removes; it fails without side
	// effects when the player does not hold the full stack.
	RemoveItem(playerID string, rec ItemRecord) error
	// AddItem inserts as much as fits and returns the leftover
	// (Count == 0 when everything was accepted).
	AddItem(playerID string, rec ItemRecord) (leftover ItemRecord)
	// DropAt places the record at the player's fallback location.
	// It cannot fail; items are never discarded.
	DropAt(playerID string, rec ItemRecord)
}

// Drop records an item that went to a fallback location instead of an
// inventory, so the affected player can be told about it.
type Drop struct {
	Player string
	Rec    ItemRecord
}

// SwapResult describes a completed trade: what each receiver got, and
// which of those stacks overflowed to the ground.
type SwapResult struct {
	Given map[string][]ItemRecord
	Drops []Drop
}

// CancelResult describes the self-returns performed by a cancellation.
type CancelResult struct {
	Reason   string
	Returned map[string][]ItemRecord
	Drops    []Drop
}

// Session is the state machine for one two-party negotiation. All mutating
// operations serialize on the session's own lock; independent sessions
// never contend with each other.
type Session struct {
	ID        string
	Initiator string
	Target    string
	CreatedAt time.Time

	inv Inventory

	mu                 sync.Mutex
	state              State
	initiatorEscrow    *Escrow
	targetEscrow       *Escrow
	initiatorConfirmed bool
	targetConfirmed    bool
}

func NewSession(id, initiator, target string, escrowSlots int, inv Inventory, now time.Time) *Session {
	return &Session{
		ID:              id,
		Initiator:       initiator,
		Target:          target,
		CreatedAt:       now,
		inv:             inv,
		state:           StateNegotiating,
		initiatorEscrow: NewEscrow(initiator, escrowSlots),
		targetEscrow:    NewEscrow(target, escrowSlots),
	}
}

func (s *Session) Other(playerID string) string {
	if playerID == s.Initiator {
		return s.Target
	}
	return s.Initiator
}

func (s *Session) escrowFor(playerID string) *Escrow {
	switch playerID {
	case s.Initiator:
		return s.initiatorEscrow
	case s.Target:
		return s.targetEscrow
	default:
		return nil
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stage moves rec from the player's real inventory into their escrow and
// clears both confirmation flags. Failures leave everything untouched.
func (s *Session) Stage(playerID string, rec ItemRecord) (slot int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNegotiating {
		return -1, codeErr(protocol.ErrInvalidState, "trade is not active")
	}
	esc := s.escrowFor(playerID)
	if esc == nil {
		return -1, codeErr(protocol.ErrInvalidTarget, "not a participant of this trade")
	}
	if rec.IsZero() {
		return -1, codeErr(protocol.ErrBadRequest, "bad item")
	}
	free := -1
	for i, r := range esc.Slots() {
		if r.IsZero() {
			free = i
			break
		}
	}
	if free < 0 {
		return -1, codeErr(protocol.ErrEscrowFull, "escrow is full")
	}
	// Atomic check-and-remove guards against stale UI state.
	if err := s.inv.RemoveItem(playerID, rec); err != nil {
		return -1, codeErr(protocol.ErrNoResource, "item not in inventory")
	}
	slot, _ = esc.Put(rec)
	s.resetConfirmLocked()
	return slot, nil
}

// Unstage returns the record in the slot to the player's real inventory
// (fallback-dropping any overflow) and clears both confirmation flags.
func (s *Session) Unstage(playerID string, slot int) (rec ItemRecord, dropped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNegotiating {
		return ItemRecord{}, false, codeErr(protocol.ErrInvalidState, "trade is not active")
	}
	esc := s.escrowFor(playerID)
	if esc == nil {
		return ItemRecord{}, false, codeErr(protocol.ErrInvalidTarget, "not a participant of this trade")
	}
	rec, ok := esc.Take(slot)
	if !ok {
		return ItemRecord{}, false, codeErr(protocol.ErrEmptySlot, "slot is empty")
	}
	if leftover := s.inv.AddItem(playerID, rec); !leftover.IsZero() {
		s.inv.DropAt(playerID, leftover)
		dropped = true
	}
	s.resetConfirmLocked()
	return rec, dropped, nil
}

// SetConfirmed sets the player's confirmation flag. When both flags become
// true the atomic swap runs before this method returns: there is no window
// where both parties are confirmed but items have not moved.
func (s *Session) SetConfirmed(playerID string, v bool) (completed bool, res SwapResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNegotiating {
		return false, SwapResult{}, codeErr(protocol.ErrInvalidState, "trade is not active")
	}
	switch playerID {
	case s.Initiator:
		s.initiatorConfirmed = v
	case s.Target:
		s.targetConfirmed = v
	default:
		return false, SwapResult{}, codeErr(protocol.ErrInvalidTarget, "not a participant of this trade")
	}
	if !(s.initiatorConfirmed && s.targetConfirmed) {
		return false, SwapResult{}, nil
	}
	return true, s.completeLocked(), nil
}

// completeLocked executes the irrevocable swap: every escrowed item goes to
// the other participant, overflow drops at the receiver, both escrows end
// empty. Only dual confirmation reaches here.
func (s *Session) completeLocked() SwapResult {
	res := SwapResult{Given: map[string][]ItemRecord{}}
	give := func(from *Escrow, to string) {
		for _, rec := range from.Items() {
			res.Given[to] = append(res.Given[to], rec)
			if leftover := s.inv.AddItem(to, rec); !leftover.IsZero() {
				s.inv.DropAt(to, leftover)
				res.Drops = append(res.Drops, Drop{Player: to, Rec: leftover})
			}
		}
		from.Clear()
	}
	give(s.initiatorEscrow, s.Target)
	give(s.targetEscrow, s.Initiator)
	s.state = StateCompleted
	return res
}

// Cancel transitions to CANCELLED and returns every escrowed item to its
// owner (fallback-dropping overflow). It cannot fail; on an already
// terminal session it reports ok=false and does nothing.
func (s *Session) Cancel(reason string) (res CancelResult, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNegotiating {
		return CancelResult{}, false
	}
	res = CancelResult{Reason: reason, Returned: map[string][]ItemRecord{}}
	back := func(esc *Escrow) {
		owner := esc.Owner()
		for _, rec := range esc.Items() {
			res.Returned[owner] = append(res.Returned[owner], rec)
			if leftover := s.inv.AddItem(owner, rec); !leftover.IsZero() {
				s.inv.DropAt(owner, leftover)
				res.Drops = append(res.Drops, Drop{Player: owner, Rec: leftover})
			}
		}
		esc.Clear()
	}
	back(s.initiatorEscrow)
	back(s.targetEscrow)
	s.state = StateCancelled
	return res, true
}

func (s *Session) resetConfirmLocked() {
	s.initiatorConfirmed = false
	s.targetConfirmed = false
}

// Snapshot is a read-only projection of a session for the rendering layer.
type Snapshot struct {
	SessionID          string
	State              State
	Initiator          string
	Target             string
	InitiatorSlots     []ItemRecord
	TargetSlots        []ItemRecord
	InitiatorConfirmed bool
	TargetConfirmed    bool
	CreatedAt          time.Time
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:          s.ID,
		State:              s.state,
		Initiator:          s.Initiator,
		Target:             s.Target,
		InitiatorSlots:     s.initiatorEscrow.Slots(),
		TargetSlots:        s.targetEscrow.Slots(),
		InitiatorConfirmed: s.initiatorConfirmed,
		TargetConfirmed:    s.targetConfirmed,
		CreatedAt:          s.CreatedAt,
	}
}
