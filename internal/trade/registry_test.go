package trade_test

import (
	"testing"
	"time"

	"voxeltrade.ai/internal/protocol"
	"voxeltrade.ai/internal/trade"
)

func mkSession(w *fakeWorld) func(req trade.PendingRequest) *trade.Session {
	return func(req trade.PendingRequest) *trade.Session {
		return trade.NewSession("T000001", req.From, req.To, 4, w, time.Now())
	}
}

func TestRegistry_PendingLifecycle(t *testing.T) {
	r := trade.NewRegistry()
	now := time.Now()

	if err := r.RegisterPending("alice", "bob", now); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RegisterPending("alice", "carol", now); trade.ErrCode(err) != protocol.ErrAlreadyRequested {
		t.Fatalf("second outgoing request: %v", err)
	}

	if _, ok := r.TakePending("carol", "alice"); ok {
		t.Fatalf("take with wrong target succeeded")
	}
	req, ok := r.TakePending("bob", "alice")
	if !ok || req.From != "alice" || req.To != "bob" {
		t.Fatalf("take: %+v ok=%v", req, ok)
	}
	if _, ok := r.TakePending("bob", "alice"); ok {
		t.Fatalf("request consumed twice")
	}

	if err := r.RegisterPending("alice", "bob", now); err != nil {
		t.Fatalf("re-register after take: %v", err)
	}
	if _, ok := r.CancelPending("alice"); !ok {
		t.Fatalf("cancel pending failed")
	}
	if _, ok := r.CancelPending("alice"); ok {
		t.Fatalf("cancel pending twice succeeded")
	}
}

func TestRegistry_CancelPendingToPrunesIncoming(t *testing.T) {
	r := trade.NewRegistry()
	now := time.Now()

	for _, from := range []string{"carol", "dave"} {
		if err := r.RegisterPending(from, "alice", now); err != nil {
			t.Fatalf("register %s: %v", from, err)
		}
	}
	if err := r.RegisterPending("erin", "bob", now); err != nil {
		t.Fatalf("register erin: %v", err)
	}

	got := r.CancelPendingTo("alice")
	if len(got) != 2 || got[0].From != "carol" || got[1].From != "dave" {
		t.Fatalf("cancelled to alice: %+v", got)
	}
	if _, ok := r.TakePending("alice", "carol"); ok {
		t.Fatalf("request to alice survived the prune")
	}
	// Unrelated requests stay, and the freed senders can request again.
	if _, ok := r.TakePending("bob", "erin"); !ok {
		t.Fatalf("unrelated request was pruned")
	}
	if err := r.RegisterPending("carol", "bob", now); err != nil {
		t.Fatalf("re-register after prune: %v", err)
	}
	if got := r.CancelPendingTo("nobody"); len(got) != 0 {
		t.Fatalf("prune with no matches: %+v", got)
	}
}

func TestRegistry_AcceptBindsBothIdentities(t *testing.T) {
	w := newFakeWorld()
	r := trade.NewRegistry()
	now := time.Now()

	if _, _, err := r.Accept("bob", "alice", time.Minute, now, mkSession(w)); trade.ErrCode(err) != protocol.ErrNoSuchRequest {
		t.Fatalf("accept without request: %v", err)
	}

	if err := r.RegisterPending("alice", "bob", now); err != nil {
		t.Fatalf("register: %v", err)
	}
	s, retired, err := r.Accept("bob", "alice", time.Minute, now, mkSession(w))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if retired != nil {
		t.Fatalf("unexpected retired request: %+v", retired)
	}

	for _, id := range []string{"alice", "bob"} {
		got, ok := r.Lookup(id)
		if !ok || got != s {
			t.Fatalf("lookup %s: %v ok=%v", id, got, ok)
		}
	}

	// Neither party can request or be accepted into another trade.
	if err := r.RegisterPending("alice", "carol", now); trade.ErrCode(err) != protocol.ErrAlreadyTrading {
		t.Fatalf("register while trading: %v", err)
	}
	if err := r.RegisterPending("carol", "bob", now); trade.ErrCode(err) != protocol.ErrAlreadyTrading {
		t.Fatalf("register targeting a trading player: %v", err)
	}

	r.Unbind(s)
	if _, ok := r.Lookup("alice"); ok {
		t.Fatalf("lookup after unbind succeeded")
	}
	if err := r.RegisterPending("alice", "carol", now); err != nil {
		t.Fatalf("register after unbind: %v", err)
	}
}

func TestRegistry_AcceptExpiredRequest(t *testing.T) {
	w := newFakeWorld()
	r := trade.NewRegistry()
	now := time.Now()

	if err := r.RegisterPending("alice", "bob", now); err != nil {
		t.Fatalf("register: %v", err)
	}
	later := now.Add(2 * time.Minute)
	if _, _, err := r.Accept("bob", "alice", time.Minute, later, mkSession(w)); trade.ErrCode(err) != protocol.ErrNoSuchRequest {
		t.Fatalf("accept expired: %v", err)
	}
	// The expired request was pruned, not left behind.
	if _, ok := r.TakePending("bob", "alice"); ok {
		t.Fatalf("expired request still present")
	}
}

func TestRegistry_AcceptRetiresAcceptorsOwnRequest(t *testing.T) {
	w := newFakeWorld()
	r := trade.NewRegistry()
	now := time.Now()

	if err := r.RegisterPending("alice", "bob", now); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RegisterPending("bob", "carol", now); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, retired, err := r.Accept("bob", "alice", time.Minute, now, mkSession(w))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if retired == nil || retired.From != "bob" || retired.To != "carol" {
		t.Fatalf("retired: %+v", retired)
	}
	if _, ok := r.TakePending("carol", "bob"); ok {
		t.Fatalf("acceptor's outgoing request survived the accept")
	}
}

func TestRegistry_BindConflictIsInternal(t *testing.T) {
	w := newFakeWorld()
	r := trade.NewRegistry()
	now := time.Now()

	s1 := trade.NewSession("T000001", "alice", "bob", 4, w, now)
	if err := r.Bind(s1); err != nil {
		t.Fatalf("bind: %v", err)
	}
	s2 := trade.NewSession("T000002", "alice", "carol", 4, w, now)
	if err := r.Bind(s2); trade.ErrCode(err) != protocol.ErrInternal {
		t.Fatalf("double bind: %v", err)
	}

	// A stale unbind of the rejected session must not evict the live one.
	r.Unbind(s2)
	if got, ok := r.Lookup("alice"); !ok || got != s1 {
		t.Fatalf("stale unbind evicted the live session")
	}
}
