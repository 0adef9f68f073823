package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"voxeltrade.ai/internal/protocol"
)

// A scripted trading partner: connects, announces itself, auto-accepts the
// first incoming trade request, stages one item from its inventory and
// confirms. Useful for exercising a server by hand.
func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "player name")
		stage = flag.String("stage", "", "item kind to stage once a trade starts (default: first inventory item)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		MaxQueue:        16,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{conn: conn, log: logger, stageKind: *stage}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.onWelcome(w)

		case protocol.TypeEvent:
			var em protocol.EventMsg
			if err := json.Unmarshal(msg, &em); err != nil {
				continue
			}
			for _, ev := range em.Events {
				b.onEvent(ev)
			}
		}
	}
}

type bot struct {
	conn      *websocket.Conn
	log       *log.Logger
	playerID  string
	stageKind string
	nextRef   int
}

func (b *bot) onWelcome(w protocol.WelcomeMsg) {
	b.playerID = w.PlayerID
	b.log.Printf("WELCOME player_id=%s escrow_slots=%d inventory=%d kinds", w.PlayerID, w.EscrowSlots, len(w.Inventory))
	if b.stageKind == "" && len(w.Inventory) > 0 {
		b.stageKind = w.Inventory[0].Item
	}
}

func (b *bot) onEvent(ev protocol.Event) {
	typ, _ := ev["type"].(string)
	switch typ {
	case "TRADE_REQUEST":
		from, _ := ev["from"].(string)
		if from == "" || from == b.playerID {
			return
		}
		b.log.Printf("request from %s, accepting", from)
		b.send(protocol.OpMsg{Op: protocol.OpAccept, From: from})

	case "TRADE_STARTED":
		if b.stageKind == "" {
			b.log.Printf("trade started, nothing to stage, confirming empty-handed")
			b.send(protocol.OpMsg{Op: protocol.OpConfirm, Confirmed: true})
			return
		}
		b.log.Printf("trade started, staging 1 %s", b.stageKind)
		b.send(protocol.OpMsg{Op: protocol.OpStage, Item: &protocol.ItemStack{Item: b.stageKind, Count: 1}})
		b.send(protocol.OpMsg{Op: protocol.OpConfirm, Confirmed: true})

	case "TRADE_ITEM_STAGED":
		// Re-confirm: any escrow change clears both confirm flags.
		b.send(protocol.OpMsg{Op: protocol.OpConfirm, Confirmed: true})

	case "TRADE_DONE":
		b.log.Printf("trade done: %v", ev["received"])

	case "TRADE_CANCELLED":
		b.log.Printf("trade cancelled: %v", ev["reason"])

	case "ACTION_RESULT":
		if ok, _ := ev["ok"].(bool); !ok {
			b.log.Printf("op %v failed: %v %v", ev["ref"], ev["code"], ev["message"])
		}
	}
}

func (b *bot) send(op protocol.OpMsg) {
	b.nextRef++
	op.Type = protocol.TypeOp
	op.ProtocolVersion = protocol.Version
	op.ID = fmt.Sprintf("B%04d", b.nextRef)
	_ = b.conn.WriteJSON(op)
}
