package trade

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"voxeltrade.ai/internal/protocol"
)

// Presence resolves whether a player can currently be reached.
type Presence interface {
	IsOnline(playerID string) bool
}

// Notifier delivers events and feedback cues to a player's client. It must
// never block: delivery is best-effort and bounded.
type Notifier interface {
	Notify(playerID string, ev protocol.Event)
	PlayFeedback(playerID, kind string)
}

// Feedback kinds forwarded to the external sound/particle layer.
const (
	FeedbackTradeDone = "trade_done"
	FeedbackTradeFail = "trade_fail"
	FeedbackItemDrop  = "item_drop"
)

type Config struct {
	EscrowSlots int

	// Outgoing-request policy.
	RequestTTL    time.Duration
	RequestWindow time.Duration
	RequestMax    int
}

func (c *Config) applyDefaults() {
	if c.EscrowSlots <= 0 {
		c.EscrowSlots = 8
	}
	if c.RequestTTL <= 0 {
		c.RequestTTL = 60 * time.Second
	}
	if c.RequestWindow <= 0 {
		c.RequestWindow = 10 * time.Second
	}
	if c.RequestMax <= 0 {
		c.RequestMax = 3
	}
}

// Coordinator is the public face of the trade subsystem: request lifecycle,
// session operations, disconnect handling, and completion. It owns the
// registry; sessions own their escrows; players' real inventories are only
// touched by the session currently bound for them.
type Coordinator struct {
	cfg  Config
	inv  Inventory
	pres Presence
	ntf  Notifier
	log  *log.Logger
	reg  *Registry

	now func() time.Time

	nextSessionNum atomic.Uint64

	rlMu sync.Mutex
	rl   map[string]*rateWindow
}

type rateWindow struct {
	Start time.Time
	Count int
}

func NewCoordinator(cfg Config, inv Inventory, pres Presence, ntf Notifier, logger *log.Logger) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cfg:  cfg,
		inv:  inv,
		pres: pres,
		ntf:  ntf,
		log:  logger,
		reg:  NewRegistry(),
		now:  time.Now,
		rl:   map[string]*rateWindow{},
	}
}

func (c *Coordinator) Registry() *Registry { return c.reg }

func (c *Coordinator) newSessionID() string {
	n := c.nextSessionNum.Add(1)
	return fmt.Sprintf("T%06d", n)
}

func (c *Coordinator) event(typ string) protocol.Event {
	return protocol.Event{"ts": c.now().UnixMilli(), "type": typ}
}

// SendRequest records from's trade request to to and notifies both.
func (c *Coordinator) SendRequest(from, to string) error {
	if from == "" || to == "" || from == to {
		return codeErr(protocol.ErrBadRequest, "bad target")
	}
	if !c.pres.IsOnline(to) {
		return codeErr(protocol.ErrInvalidTarget, "player not found or offline")
	}
	if !c.requestAllowed(from) {
		return codeErr(protocol.ErrRateLimit, "too many trade requests")
	}
	if err := c.reg.RegisterPending(from, to, c.now()); err != nil {
		return err
	}
	ev := c.event("TRADE_REQUEST")
	ev["from"] = from
	ev["to"] = to
	c.ntf.Notify(to, ev)
	c.ntf.Notify(from, ev)
	return nil
}

// AcceptRequest consumes from's request to to, builds and binds the
// session, and tells both parties to open their trade views.
func (c *Coordinator) AcceptRequest(to, from string) (*Session, error) {
	s, retired, err := c.reg.Accept(to, from, c.cfg.RequestTTL, c.now(), func(req PendingRequest) *Session {
		return NewSession(c.newSessionID(), req.From, req.To, c.cfg.EscrowSlots, c.inv, c.now())
	})
	if err != nil {
		if ErrCode(err) == protocol.ErrInternal && c.log != nil {
			c.log.Printf("registry bind conflict: %v", err)
		}
		return nil, err
	}
	if retired != nil && c.pres.IsOnline(retired.To) {
		ev := c.event("TRADE_REQUEST_CANCELLED")
		ev["from"] = retired.From
		ev["reason"] = "requester entered a trade"
		c.ntf.Notify(retired.To, ev)
	}
	for _, id := range []string{s.Initiator, s.Target} {
		ev := c.event("TRADE_STARTED")
		ev["trade_id"] = s.ID
		ev["with"] = s.Other(id)
		ev["escrow_slots"] = c.cfg.EscrowSlots
		c.ntf.Notify(id, ev)
	}
	return s, nil
}

// CancelRequest withdraws from's outstanding request.
func (c *Coordinator) CancelRequest(from string) error {
	req, ok := c.reg.CancelPending(from)
	if !ok {
		return codeErr(protocol.ErrNoSuchRequest, "no outstanding request")
	}
	if c.pres.IsOnline(req.To) {
		ev := c.event("TRADE_REQUEST_CANCELLED")
		ev["from"] = from
		ev["reason"] = "cancelled by requester"
		c.ntf.Notify(req.To, ev)
	}
	return nil
}

// Stage forwards a stage intent into the player's session.
func (c *Coordinator) Stage(playerID string, rec ItemRecord) error {
	s, ok := c.reg.Lookup(playerID)
	if !ok {
		return codeErr(protocol.ErrInvalidState, "not in a trade")
	}
	slot, err := s.Stage(playerID, rec)
	if err != nil {
		return err
	}
	for _, id := range []string{s.Initiator, s.Target} {
		ev := c.event("TRADE_ITEM_STAGED")
		ev["trade_id"] = s.ID
		ev["by"] = playerID
		ev["slot"] = slot
		ev["item"] = rec.Item
		ev["count"] = rec.Count
		c.ntf.Notify(id, ev)
	}
	return nil
}

// Unstage forwards an unstage intent into the player's session.
func (c *Coordinator) Unstage(playerID string, slot int) (ItemRecord, error) {
	s, ok := c.reg.Lookup(playerID)
	if !ok {
		return ItemRecord{}, codeErr(protocol.ErrInvalidState, "not in a trade")
	}
	rec, dropped, err := s.Unstage(playerID, slot)
	if err != nil {
		return ItemRecord{}, err
	}
	for _, id := range []string{s.Initiator, s.Target} {
		ev := c.event("TRADE_ITEM_UNSTAGED")
		ev["trade_id"] = s.ID
		ev["by"] = playerID
		ev["slot"] = slot
		ev["item"] = rec.Item
		ev["count"] = rec.Count
		c.ntf.Notify(id, ev)
	}
	if dropped {
		c.notifyDrop(playerID, rec, "inventory full on unstage")
	}
	return rec, nil
}

// SetConfirmed flips the player's confirmation flag; on dual confirmation
// the swap has already run by the time this returns, and the session is
// retired here.
func (c *Coordinator) SetConfirmed(playerID string, v bool) error {
	s, ok := c.reg.Lookup(playerID)
	if !ok {
		return codeErr(protocol.ErrInvalidState, "not in a trade")
	}
	completed, res, err := s.SetConfirmed(playerID, v)
	if err != nil {
		return err
	}
	if !completed {
		for _, id := range []string{s.Initiator, s.Target} {
			ev := c.event("TRADE_CONFIRM")
			ev["trade_id"] = s.ID
			ev["by"] = playerID
			ev["confirmed"] = v
			c.ntf.Notify(id, ev)
		}
		return nil
	}
	c.reg.Unbind(s)
	for _, id := range []string{s.Initiator, s.Target} {
		ev := c.event("TRADE_DONE")
		ev["trade_id"] = s.ID
		ev["with"] = s.Other(id)
		ev["received"] = stacks(res.Given[id])
		c.ntf.Notify(id, ev)
		c.ntf.PlayFeedback(id, FeedbackTradeDone)
	}
	for _, d := range res.Drops {
		c.notifyDrop(d.Player, d.Rec, "inventory full on trade")
	}
	if c.log != nil {
		c.log.Printf("trade %s completed: %s <-> %s", s.ID, s.Initiator, s.Target)
	}
	return nil
}

// CancelTrade cancels the session the player is part of. Cancelling an
// already finished trade reports E_INVALID_STATE and moves nothing.
func (c *Coordinator) CancelTrade(playerID, reason string) error {
	s, ok := c.reg.Lookup(playerID)
	if !ok {
		return codeErr(protocol.ErrInvalidState, "not in a trade")
	}
	res, ok := s.Cancel(reason)
	if !ok {
		return codeErr(protocol.ErrInvalidState, "trade already over")
	}
	c.reg.Unbind(s)
	for _, id := range []string{s.Initiator, s.Target} {
		ev := c.event("TRADE_CANCELLED")
		ev["trade_id"] = s.ID
		ev["by"] = playerID
		ev["reason"] = reason
		ev["returned"] = stacks(res.Returned[id])
		c.ntf.Notify(id, ev)
		c.ntf.PlayFeedback(id, FeedbackTradeFail)
	}
	for _, d := range res.Drops {
		c.notifyDrop(d.Player, d.Rec, "inventory full on return")
	}
	if c.log != nil {
		c.log.Printf("trade %s cancelled by %s: %s", s.ID, playerID, reason)
	}
	return nil
}

// OnDisconnect withdraws the player's pending requests in both directions
// and force-cancels their session. Escrowed items go home (or to the
// ground) immediately.
func (c *Coordinator) OnDisconnect(playerID string) {
	if req, ok := c.reg.CancelPending(playerID); ok && c.pres.IsOnline(req.To) {
		ev := c.event("TRADE_REQUEST_CANCELLED")
		ev["from"] = playerID
		ev["reason"] = "requester disconnected"
		c.ntf.Notify(req.To, ev)
	}
	// Requests aimed at the leaver die with them; their senders are freed
	// to request elsewhere right away.
	for _, req := range c.reg.CancelPendingTo(playerID) {
		if !c.pres.IsOnline(req.From) {
			continue
		}
		ev := c.event("TRADE_REQUEST_CANCELLED")
		ev["from"] = req.From
		ev["to"] = req.To
		ev["reason"] = "target disconnected"
		c.ntf.Notify(req.From, ev)
	}
	if _, ok := c.reg.Lookup(playerID); ok {
		_ = c.CancelTrade(playerID, "participant disconnected")
	}
}

// OnViewError force-cancels the player's session after the rendering layer
// failed irrecoverably: items must never sit escrowed with no visible
// owner interface.
func (c *Coordinator) OnViewError(playerID string, cause error) {
	if c.log != nil {
		c.log.Printf("trade view error for %s: %v", playerID, cause)
	}
	_ = c.CancelTrade(playerID, "trade view failed")
}

// Lookup returns a read-only snapshot of the player's session for the
// rendering layer.
func (c *Coordinator) Lookup(playerID string) (Snapshot, bool) {
	s, ok := c.reg.Lookup(playerID)
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

func (c *Coordinator) notifyDrop(playerID string, rec ItemRecord, reason string) {
	ev := c.event("ITEM_DROPPED")
	ev["item"] = rec.Item
	ev["count"] = rec.Count
	ev["reason"] = reason
	c.ntf.Notify(playerID, ev)
	c.ntf.PlayFeedback(playerID, FeedbackItemDrop)
}

func (c *Coordinator) requestAllowed(playerID string) bool {
	c.rlMu.Lock()
	defer c.rlMu.Unlock()
	now := c.now()
	w := c.rl[playerID]
	if w == nil || now.Sub(w.Start) >= c.cfg.RequestWindow {
		c.rl[playerID] = &rateWindow{Start: now, Count: 1}
		return true
	}
	w.Count++
	return w.Count <= c.cfg.RequestMax
}

func stacks(recs []ItemRecord) []protocol.ItemStack {
	out := make([]protocol.ItemStack, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Stack())
	}
	return out
}
