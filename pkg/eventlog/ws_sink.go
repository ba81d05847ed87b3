package eventlog

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/owliabot/ais-sub001/internal/application/observer"
	"github.com/owliabot/ais-sub001/pkg/aisjson"
)

// WSSink broadcasts the same envelope shape as Sink over a websocket
// hub instead of an io.Writer, for a live --events-ws :addr tail
// alongside the required JSONL sink. One run maps to one hub; clients
// connect at any point during the run and receive events from then on
// (no replay).
type WSSink struct {
	runID         string
	redaction     RedactionMode
	allowUnredact []string
	seq           int64

	mu      sync.RWMutex
	clients map[*wsClient]bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewWSSink creates a WSSink for runID, under redaction mode.
func NewWSSink(runID string, mode RedactionMode, allowUnredact ...string) *WSSink {
	return &WSSink{
		runID:         runID,
		redaction:     mode,
		allowUnredact: allowUnredact,
		clients:       make(map[*wsClient]bool),
	}
}

func (s *WSSink) Name() string                { return "eventlog.ws_sink" }
func (s *WSSink) Filter() observer.EventFilter { return nil }

// OnEvent serializes event into the shared envelope shape and fans it
// out to every connected client's send buffer; a client whose buffer
// is full is dropped rather than blocking the run.
func (s *WSSink) OnEvent(ctx context.Context, event observer.Event) error {
	seq := atomic.AddInt64(&s.seq, 1)
	data := redact(event.Data, s.redaction, s.allowUnredact, "")
	env := Envelope{
		Schema:    EnvelopeSchema,
		RunID:     s.runID,
		Seq:       seq,
		Timestamp: event.Timestamp,
		Event: EventBody{
			Type:   string(event.Type),
			NodeID: event.NodeID,
			Data:   data,
		},
		Extensions: map[string]interface{}{"redaction_mode": string(s.redaction)},
	}
	encoded, err := aisjson.Marshal(env)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- encoded:
		default:
			delete(s.clients, c)
			close(c.send)
		}
	}
	return nil
}

// ServeHTTP upgrades the connection and registers it as a broadcast
// target for the lifetime of the run.
func (s *WSSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, 256)}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go s.writePump(c)
	s.readPump(c)
}

// readPump discards client messages but keeps the connection alive
// until the client disconnects, then unregisters it.
func (s *WSSink) readPump(c *wsClient) {
	defer s.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *WSSink) writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *WSSink) unregister(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// ClientCount reports currently connected websocket clients.
func (s *WSSink) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
