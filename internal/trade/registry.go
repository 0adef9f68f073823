package trade

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"voxeltrade.ai/internal/protocol"
)

// PendingRequest is an outstanding, unaccepted trade request. A player has
// at most one outgoing request at a time; a target may have several
// incoming ones from different senders.
type PendingRequest struct {
	From      string
	To        string
	CreatedAt time.Time
}

// Registry owns the process-wide maps from player identity to pending
// request and to active session. It is the single serialization point for
// "at most one session per player": every operation is atomic under one
// lock and no caller ever observes one identity bound without the other.
type Registry struct {
	mu       sync.Mutex
	pending  map[string]PendingRequest // keyed by sender
	sessions map[string]*Session       // keyed by player id, both parties
}

func NewRegistry() *Registry {
	return &Registry{
		pending:  map[string]PendingRequest{},
		sessions: map[string]*Session{},
	}
}

// RegisterPending records from's outgoing request to to. It fails when
// either player already owns a session or from already has one out.
func (r *Registry) RegisterPending(from, to string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[from] != nil || r.sessions[to] != nil {
		return codeErr(protocol.ErrAlreadyTrading, "already in a trade")
	}
	if _, ok := r.pending[from]; ok {
		return codeErr(protocol.ErrAlreadyRequested, "request already outstanding")
	}
	r.pending[from] = PendingRequest{From: from, To: to, CreatedAt: now}
	return nil
}

// TakePending atomically removes and returns the matching request.
func (r *Registry) TakePending(to, from string) (PendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.takePendingLocked(to, from)
}

func (r *Registry) takePendingLocked(to, from string) (PendingRequest, bool) {
	req, ok := r.pending[from]
	if !ok || req.To != to {
		return PendingRequest{}, false
	}
	delete(r.pending, from)
	return req, true
}

// CancelPendingTo removes every request aimed at to, returning them sorted
// by sender so the callers can be notified deterministically.
func (r *Registry) CancelPendingTo(to string) []PendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PendingRequest
	for from, req := range r.pending {
		if req.To != to {
			continue
		}
		delete(r.pending, from)
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

// CancelPending removes from's outgoing request, if any.
func (r *Registry) CancelPending(from string) (PendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[from]
	if !ok {
		return PendingRequest{}, false
	}
	delete(r.pending, from)
	return req, true
}

// Accept consumes the matching pending request and binds a freshly built
// session under both identities, all in one atomic step. Requests older
// than ttl are pruned and reported as absent. mk runs under the registry
// lock and must only construct the session. retired is the acceptor's own
// outgoing request, if one existed: a player in a session cannot also be
// requesting, and the caller should notify that request's target.
func (r *Registry) Accept(to, from string, ttl time.Duration, now time.Time, mk func(req PendingRequest) *Session) (s *Session, retired *PendingRequest, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.pending[from]
	if !ok || req.To != to {
		return nil, nil, codeErr(protocol.ErrNoSuchRequest, "no such request")
	}
	if ttl > 0 && now.Sub(req.CreatedAt) > ttl {
		delete(r.pending, from)
		return nil, nil, codeErr(protocol.ErrNoSuchRequest, "request expired")
	}
	if r.sessions[from] != nil || r.sessions[to] != nil {
		return nil, nil, codeErr(protocol.ErrAlreadyTrading, "already in a trade")
	}
	delete(r.pending, from)
	if out, ok := r.pending[to]; ok {
		delete(r.pending, to)
		retired = &out
	}
	s = mk(req)
	if err := r.bindLocked(s); err != nil {
		// Unreachable given the checks above; kept as the fatal-invariant
		// guard the caller logs and force-cancels on.
		return nil, nil, err
	}
	return s, retired, nil
}

// Bind registers the session under both participant identities. A bind
// conflict is a coordination bug, reported as E_INTERNAL.
func (r *Registry) Bind(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bindLocked(s)
}

func (r *Registry) bindLocked(s *Session) error {
	if cur := r.sessions[s.Initiator]; cur != nil {
		return codeErr(protocol.ErrInternal, fmt.Sprintf("double bind: %s already in %s", s.Initiator, cur.ID))
	}
	if cur := r.sessions[s.Target]; cur != nil {
		return codeErr(protocol.ErrInternal, fmt.Sprintf("double bind: %s already in %s", s.Target, cur.ID))
	}
	r.sessions[s.Initiator] = s
	r.sessions[s.Target] = s
	return nil
}

// Unbind removes both identity bindings. Stale unbinds (after a newer
// session was bound) are no-ops.
func (r *Registry) Unbind(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.Initiator] == s {
		delete(r.sessions, s.Initiator)
	}
	if r.sessions[s.Target] == s {
		delete(r.sessions, s.Target)
	}
}

func (r *Registry) Lookup(playerID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[playerID]
	return s, s != nil
}
