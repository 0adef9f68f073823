package ws

import (
	"encoding/json"
	"sync"
	"time"

	"voxeltrade.ai/internal/protocol"
)

// Hub tracks connected clients and delivers coordinator notifications.
// Delivery never blocks: each client has a bounded out channel and the
// oldest frame is dropped when it is full.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*client
	grace   map[string]*time.Timer
}

type client struct {
	out chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients: map[string]*client{},
		grace:   map[string]*time.Timer{},
	}
}

// Attach registers the connection's out channel and cancels any pending
// disconnect grace timer (reconnect within the grace window keeps the
// player's session alive).
func (h *Hub) Attach(playerID string, out chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t := h.grace[playerID]; t != nil {
		t.Stop()
		delete(h.grace, playerID)
	}
	h.clients[playerID] = &client{out: out}
}

// Detach removes the connection and arms a grace timer; expired fires
// only if the player has not reattached in the meantime.
func (h *Hub) Detach(playerID string, out chan []byte, graceAfter time.Duration, expired func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cl := h.clients[playerID]
	if cl == nil || cl.out != out {
		return // a newer connection took over
	}
	delete(h.clients, playerID)
	if t := h.grace[playerID]; t != nil {
		t.Stop()
	}
	h.grace[playerID] = time.AfterFunc(graceAfter, func() {
		h.mu.Lock()
		_, reattached := h.clients[playerID]
		delete(h.grace, playerID)
		h.mu.Unlock()
		if !reattached {
			expired()
		}
	})
}

func (h *Hub) Notify(playerID string, ev protocol.Event) {
	h.send(playerID, protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Events:          []protocol.Event{ev},
	})
}

func (h *Hub) PlayFeedback(playerID, kind string) {
	h.Notify(playerID, protocol.Event{"type": "FEEDBACK", "kind": kind})
}

func (h *Hub) send(playerID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.Lock()
	cl := h.clients[playerID]
	h.mu.Unlock()
	if cl == nil {
		return
	}
	sendLatest(cl.out, b)
}

// sendLatest enqueues b, dropping the oldest pending frame if the buffer
// is full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
