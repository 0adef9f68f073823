package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxeltrade.ai/internal/player"
	"voxeltrade.ai/internal/protocol"
	"voxeltrade.ai/internal/trade"
)

type ServerConfig struct {
	EscrowSlots     int
	StarterItems    map[string]int
	DisconnectGrace time.Duration
}

type Server struct {
	cfg    ServerConfig
	coord  *trade.Coordinator
	roster *player.Roster
	hub    *Hub
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(cfg ServerConfig, coord *trade.Coordinator, roster *player.Roster, hub *Hub, logger *log.Logger) *Server {
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = 10 * time.Second
	}
	return &Server{
		cfg:    cfg,
		coord:  coord,
		roster: roster,
		hub:    hub,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		playerID, out := s.handshake(conn)
		if playerID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeOp {
				s.hub.Notify(playerID, actionResult("", &trade.Error{Code: protocol.ErrProtoBadRequest, Msg: "expected TRADE_OP"}))
				continue
			}
			var op protocol.OpMsg
			if err := json.Unmarshal(msg, &op); err != nil {
				s.hub.Notify(playerID, actionResult("", &trade.Error{Code: protocol.ErrProtoBadRequest, Msg: "malformed TRADE_OP"}))
				continue
			}
			if op.ProtocolVersion != protocol.Version {
				s.hub.Notify(playerID, actionResult(op.ID, &trade.Error{Code: protocol.ErrProtoBadRequest, Msg: "bad protocol_version"}))
				continue
			}
			s.dispatch(playerID, op)
		}

		// Cleanup: mark offline now; cancel the trade only if the player
		// does not reconnect within the grace window.
		s.roster.SetOnline(playerID, false)
		s.hub.Detach(playerID, out, s.cfg.DisconnectGrace, func() {
			s.coord.OnDisconnect(playerID)
		})
	}
}

func (s *Server) handshake(conn *websocket.Conn) (playerID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 16
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	// Optional: resume an existing player (reconnect).
	resumeToken := ""
	if hello.Auth != nil {
		resumeToken = strings.TrimSpace(hello.Auth.Token)
	}

	var p *player.Player
	resumed := false
	if resumeToken != "" {
		if rp, ok := s.roster.Resume(resumeToken); ok {
			p = rp
			resumed = true
		}
	}
	if p == nil {
		p = s.roster.Join(hello.PlayerName, s.cfg.StarterItems)
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PlayerID:        p.ID,
		PlayerName:      p.Name,
		ResumeToken:     p.ResumeToken,
		Resumed:         resumed,
		EscrowSlots:     s.cfg.EscrowSlots,
		Inventory:       s.roster.InventoryList(p.ID),
	}
	if err := writeJSON(conn, welcome); err != nil {
		// Join/Resume marked the player online; undo it, or a client that
		// never saw its WELCOME stays targetable but unreachable.
		s.roster.SetOnline(p.ID, false)
		return "", nil
	}

	s.hub.Attach(p.ID, out)
	s.roster.SetOnline(p.ID, true)
	return p.ID, out
}

func (s *Server) dispatch(playerID string, op protocol.OpMsg) {
	var err error
	switch op.Op {
	case protocol.OpRequest:
		err = s.coord.SendRequest(playerID, op.To)
	case protocol.OpAccept:
		_, err = s.coord.AcceptRequest(playerID, op.From)
	case protocol.OpCancelRequest:
		err = s.coord.CancelRequest(playerID)
	case protocol.OpCancelTrade:
		reason := op.Reason
		if reason == "" {
			reason = "cancelled by player"
		}
		err = s.coord.CancelTrade(playerID, reason)
	case protocol.OpStage:
		if op.Item == nil {
			err = &trade.Error{Code: protocol.ErrBadRequest, Msg: "missing item"}
		} else {
			err = s.coord.Stage(playerID, trade.FromStack(*op.Item))
		}
	case protocol.OpUnstage:
		_, err = s.coord.Unstage(playerID, op.Slot)
	case protocol.OpConfirm:
		err = s.coord.SetConfirmed(playerID, op.Confirmed)
	case protocol.OpView:
		s.sendView(playerID, op.ID)
		return
	case protocol.OpViewError:
		s.coord.OnViewError(playerID, errors.New(op.Reason))
		return
	default:
		err = &trade.Error{Code: protocol.ErrBadRequest, Msg: "unknown op"}
	}
	s.hub.Notify(playerID, actionResult(op.ID, err))
}

func (s *Server) sendView(playerID, ref string) {
	snap, ok := s.coord.Lookup(playerID)
	if !ok {
		s.hub.Notify(playerID, actionResult(ref, &trade.Error{Code: protocol.ErrInvalidState, Msg: "not in a trade"}))
		return
	}
	s.hub.send(playerID, viewMsg(ref, snap))
}

func viewMsg(ref string, snap trade.Snapshot) protocol.ViewMsg {
	return protocol.ViewMsg{
		Type:               protocol.TypeView,
		ProtocolVersion:    protocol.Version,
		Ref:                ref,
		SessionID:          snap.SessionID,
		State:              string(snap.State),
		Initiator:          snap.Initiator,
		Target:             snap.Target,
		InitiatorItems:     stacks(snap.InitiatorSlots),
		TargetItems:        stacks(snap.TargetSlots),
		InitiatorConfirmed: snap.InitiatorConfirmed,
		TargetConfirmed:    snap.TargetConfirmed,
	}
}

func stacks(recs []trade.ItemRecord) []protocol.ItemStack {
	out := make([]protocol.ItemStack, len(recs))
	for i, r := range recs {
		out[i] = r.Stack()
	}
	return out
}

func actionResult(ref string, err error) protocol.Event {
	ev := protocol.Event{
		"ts":   time.Now().UnixMilli(),
		"type": "ACTION_RESULT",
		"ref":  ref,
		"ok":   err == nil,
	}
	if err != nil {
		ev["code"] = trade.ErrCode(err)
		ev["message"] = err.Error()
	}
	return ev
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
