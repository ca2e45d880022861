package coordinator

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coordplane/coordplane/internal/wsmsg"
	"github.com/coordplane/coordplane/internal/wsreg"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type chatPayload struct {
	Author     string `json:"author"`
	AuthorType string `json:"authorType"`
	Message    string `json:"message"`
}

type agentUpdatePayload struct {
	AgentID string `json:"agentId"`
	Status  string `json:"status"`
}

// ServeWS upgrades the connection, tags it with tag (the socket's
// opaque exclude-sender identity), implicitly marks the agent active
// when tag names a known agent, and reads inbound frames until the
// socket closes.
func (in *Instance) ServeWS(w http.ResponseWriter, r *http.Request, tag string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	c := in.sockets.Add(tag, conn)
	defer in.sockets.Remove(c)

	if tag != "" {
		if _, err := in.UpsertAgent(Agent{AgentID: tag, Status: AgentStatusActive}, tag); err != nil {
			log.Printf("[WS] implicit upsert for %s failed: %v", tag, err)
		}
	}

	wsreg.ReadLoop(conn, func(data []byte) {
		in.handleInbound(tag, data)
	})
}

func (in *Instance) handleInbound(tag string, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[WS] malformed inbound frame from %s: %v", tag, err)
		return
	}

	switch msg.Type {
	case "ping":
		in.sockets.Broadcast("", wsmsg.New("pong", map[string]any{"at": time.Now()}))
	case "chat":
		var p chatPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Printf("[WS] malformed chat payload from %s: %v", tag, err)
			return
		}
		if p.Author == "" {
			p.Author = tag
		}
		if p.AuthorType == "" {
			p.AuthorType = AuthorTypeAgent
		}
		if _, err := in.PostChat(p.Author, p.AuthorType, p.Message, tag); err != nil {
			log.Printf("[WS] chat over socket failed: %v", err)
		}
	case "agent-update":
		var p agentUpdatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Printf("[WS] malformed agent-update payload from %s: %v", tag, err)
			return
		}
		if p.AgentID == "" {
			p.AgentID = tag
		}
		if _, err := in.UpsertAgent(Agent{AgentID: p.AgentID, Status: p.Status}, tag); err != nil {
			log.Printf("[WS] agent-update over socket failed: %v", err)
		}
	default:
		log.Printf("[WS] unrecognized inbound frame type %q from %s", msg.Type, tag)
	}
}
