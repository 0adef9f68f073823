package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	PlayerName      string     `json:"player_name"`
	MaxQueue        int        `json:"max_queue,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	PlayerID        string      `json:"player_id"`
	PlayerName      string      `json:"player_name"`
	ResumeToken     string      `json:"resume_token"`
	Resumed         bool        `json:"resumed,omitempty"`
	EscrowSlots     int         `json:"escrow_slots"`
	Inventory       []ItemStack `json:"inventory"`
}

// Trade operation kinds carried by TRADE_OP.
const (
	OpRequest       = "REQUEST"
	OpAccept        = "ACCEPT"
	OpCancelRequest = "CANCEL_REQUEST"
	OpCancelTrade   = "CANCEL_TRADE"
	OpStage         = "STAGE"
	OpUnstage       = "UNSTAGE"
	OpConfirm       = "CONFIRM"
	OpView          = "VIEW"
	OpViewError     = "VIEW_ERROR"
)

// TRADE_OP (client -> server)
type OpMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"` // client-chosen ref, echoed in ACTION_RESULT
	Op              string `json:"op"`

	To        string     `json:"to,omitempty"`   // REQUEST: target player id
	From      string     `json:"from,omitempty"` // ACCEPT: requesting player id
	Item      *ItemStack `json:"item,omitempty"` // STAGE
	Slot      int        `json:"slot,omitempty"` // UNSTAGE
	Confirmed bool       `json:"confirmed,omitempty"`
	Reason    string     `json:"reason,omitempty"` // CANCEL_TRADE, VIEW_ERROR
}

type ItemStack struct {
	Item  string            `json:"item"`
	Count int               `json:"count"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Events          []Event `json:"events"`
}

type Event map[string]interface{}

// TRADE_VIEW (server -> client): read-only projection of one session for
// the rendering layer. Empty slots have Item == "".
type ViewMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`

	SessionID          string      `json:"session_id"`
	State              string      `json:"state"`
	Initiator          string      `json:"initiator"`
	Target             string      `json:"target"`
	InitiatorItems     []ItemStack `json:"initiator_items"`
	TargetItems        []ItemStack `json:"target_items"`
	InitiatorConfirmed bool        `json:"initiator_confirmed"`
	TargetConfirmed    bool        `json:"target_confirmed"`
}
