package eventlog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/owliabot/ais-sub001/internal/application/observer"
)

func TestWSSinkBroadcastsToConnectedClient(t *testing.T) {
	sink := NewWSSink("run-1", RedactOff)
	server := httptest.NewServer(http.HandlerFunc(sink.ServeHTTP))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for sink.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sink.ClientCount() != 1 {
		t.Fatalf("expected 1 connected client, got %d", sink.ClientCount())
	}

	err = sink.OnEvent(context.Background(), observer.Event{
		Type:      observer.EventNodeReady,
		NodeID:    "n1",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"foo": "bar"},
	})
	if err != nil {
		t.Fatalf("OnEvent: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.RunID != "run-1" || env.Event.Type != "node_ready" || env.Event.NodeID != "n1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestWSSinkDropsClientOnFullBuffer(t *testing.T) {
	sink := NewWSSink("run-1", RedactOff)
	c := &wsClient{send: make(chan []byte)} // unbuffered, never drained
	sink.clients[c] = true

	if err := sink.OnEvent(context.Background(), observer.Event{
		Type:      observer.EventNodeReady,
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("OnEvent: %v", err)
	}
	if sink.ClientCount() != 0 {
		t.Fatalf("expected stalled client to be dropped, got count %d", sink.ClientCount())
	}
}

func TestWSSinkNameAndFilter(t *testing.T) {
	sink := NewWSSink("run-1", RedactOff)
	if sink.Name() != "eventlog.ws_sink" {
		t.Fatalf("unexpected name: %s", sink.Name())
	}
	if sink.Filter() != nil {
		t.Fatalf("expected nil filter")
	}
}
