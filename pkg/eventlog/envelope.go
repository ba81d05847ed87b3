// Package eventlog implements Event, Trace, Checkpoint (component G):
// the JSONL event envelope with redaction, and the engine checkpoint
// schema with atomic file and in-memory stores.
package eventlog

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/owliabot/ais-sub001/internal/application/observer"
	"github.com/owliabot/ais-sub001/pkg/aisjson"
)

// EnvelopeSchema is the event envelope's schema version.
const EnvelopeSchema = "ais-engine-event/0.0.3"

// RedactionMode is one of off/audit/default.
type RedactionMode string

const (
	RedactOff     RedactionMode = "off"
	RedactAudit   RedactionMode = "audit"
	RedactDefault RedactionMode = "default"
)

// Envelope is the wire shape of one JSONL event line.
type Envelope struct {
	Schema     string                 `json:"schema"`
	RunID      string                 `json:"run_id"`
	Seq        int64                  `json:"seq"`
	Timestamp  time.Time              `json:"ts"`
	Event      EventBody              `json:"event"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// EventBody is the event-specific payload of an Envelope.
type EventBody struct {
	Type   string                 `json:"type"`
	NodeID string                 `json:"node_id,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// secretKeyPattern matches keys that look like they carry secrets, used
// by the "audit" redaction mode.
var secretKeyPattern = []string{"private_key", "secret", "mnemonic", "password", "signer"}

// strictStripKeys are always stripped under "default" redaction.
var strictStripKeys = map[string]bool{"rpc_payload": true, "raw_tx": true}

// Sink writes envelopes as JSONL to an io.Writer, implementing
// observer.Observer so it can be registered directly with the manager.
type Sink struct {
	w             io.Writer
	mu            sync.Mutex
	seq           int64
	runID         string
	redaction     RedactionMode
	allowUnredact []string // path prefixes exempt from redaction
}

// NewSink creates a JSONL sink writing to w for runID, under mode.
func NewSink(w io.Writer, runID string, mode RedactionMode, allowUnredact ...string) *Sink {
	return &Sink{w: w, runID: runID, redaction: mode, allowUnredact: allowUnredact}
}

func (s *Sink) Name() string                    { return "eventlog.sink" }
func (s *Sink) Filter() observer.EventFilter     { return nil }

// OnEvent serializes event as one JSONL line.
func (s *Sink) OnEvent(ctx context.Context, event observer.Event) error {
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
	if _, err := s.w.Write(encoded); err != nil {
		return err
	}
	_, err = s.w.Write([]byte("\n"))
	return err
}

func redact(data map[string]interface{}, mode RedactionMode, allow []string, prefix string) map[string]interface{} {
	if mode == RedactOff || data == nil {
		return data
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if isAllowed(path, allow) {
			out[k] = v
			continue
		}
		if mode == RedactDefault && strictStripKeys[k] {
			out[k] = "[redacted]"
			continue
		}
		if looksSecret(k) {
			out[k] = "[redacted]"
			continue
		}
		if mode == RedactDefault {
			if sub, ok := v.(map[string]interface{}); ok {
				out[k] = redact(sub, mode, allow, path)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func looksSecret(key string) bool {
	for _, pat := range secretKeyPattern {
		if key == pat {
			return true
		}
	}
	return false
}

func isAllowed(path string, allow []string) bool {
	for _, a := range allow {
		if a == path {
			return true
		}
	}
	return false
}
