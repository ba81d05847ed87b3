// Package command implements the Command Channel (component H): JSONL
// control input parsing and guarded application for the four command
// kinds (apply_patches, user_confirm, select_provider, cancel).
package command

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/owliabot/ais-sub001/pkg/aisjson"
	"github.com/owliabot/ais-sub001/pkg/value"
)

// Kind is the closed set of command kinds.
type Kind string

const (
	KindApplyPatches   Kind = "apply_patches"
	KindUserConfirm    Kind = "user_confirm"
	KindSelectProvider Kind = "select_provider"
	KindCancel         Kind = "cancel"
)

// Envelope is one parsed command line.
type Envelope struct {
	ID         string                 `json:"id"`
	Timestamp  int64                  `json:"ts"`
	Kind       Kind                   `json:"kind"`
	Payload    json.RawMessage        `json:"payload"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// ApplyPatchesPayload is the payload for apply_patches.
type ApplyPatchesPayload struct {
	Patches []value.Patch `json:"patches"`
}

// UserConfirmPayload is the payload for user_confirm.
type UserConfirmPayload struct {
	NodeID  string `json:"node_id"`
	Approve bool   `json:"approve"`
}

// SelectProviderPayload is the payload for select_provider.
type SelectProviderPayload struct {
	NodeID     string `json:"node_id,omitempty"`
	DetectKind string `json:"detect_kind"`
	Provider   string `json:"provider"`
	Chain      string `json:"chain,omitempty"`
}

// CancelPayload is the payload for cancel.
type CancelPayload struct {
	NodeID string `json:"node_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Reader parses one JSONL command stream, tracking seen ids for
// duplicate suppression.
type Reader struct {
	scanner *bufio.Scanner
	seen    map[string]bool
}

// NewReader wraps r as a command line reader. seedSeen pre-populates
// the duplicate-suppression set from a checkpoint's processed command
// ids so replay after resume is idempotent.
func NewReader(r io.Reader, seedSeen []string) *Reader {
	seen := make(map[string]bool, len(seedSeen))
	for _, id := range seedSeen {
		seen[id] = true
	}
	return &Reader{scanner: bufio.NewScanner(r), seen: seen}
}

// Outcome is either an accepted, parsed Envelope or a rejection reason.
type Outcome struct {
	Envelope *Envelope
	Rejected bool
	Reason   string
}

// Next reads and parses the next command line, or returns ok=false at
// EOF. Duplicate ids are reported as a rejected Outcome rather than
// surfaced as an error.
func (r *Reader) Next() (Outcome, bool) {
	if !r.scanner.Scan() {
		return Outcome{}, false
	}
	line := r.scanner.Bytes()
	var env Envelope
	if err := aisjson.Unmarshal(line, &env); err != nil {
		return Outcome{Rejected: true, Reason: fmt.Sprintf("parse error: %v", err)}, true
	}
	if env.ID != "" && r.seen[env.ID] {
		return Outcome{Envelope: &env, Rejected: true, Reason: "duplicate command id"}, true
	}
	if env.ID != "" {
		r.seen[env.ID] = true
	}
	return Outcome{Envelope: &env}, true
}

// Validate checks that kind is a closed-set member.
func Validate(kind Kind) error {
	switch kind {
	case KindApplyPatches, KindUserConfirm, KindSelectProvider, KindCancel:
		return nil
	default:
		return fmt.Errorf("unknown command kind: %s", kind)
	}
}

// DecodeApplyPatches parses the payload of an apply_patches command.
func DecodeApplyPatches(env *Envelope) (ApplyPatchesPayload, error) {
	var p ApplyPatchesPayload
	err := aisjson.Unmarshal(env.Payload, &p)
	return p, err
}

// DecodeUserConfirm parses the payload of a user_confirm command.
func DecodeUserConfirm(env *Envelope) (UserConfirmPayload, error) {
	var p UserConfirmPayload
	err := aisjson.Unmarshal(env.Payload, &p)
	return p, err
}

// DecodeSelectProvider parses the payload of a select_provider command.
func DecodeSelectProvider(env *Envelope) (SelectProviderPayload, error) {
	var p SelectProviderPayload
	err := aisjson.Unmarshal(env.Payload, &p)
	return p, err
}

// DecodeCancel parses the payload of a cancel command.
func DecodeCancel(env *Envelope) (CancelPayload, error) {
	var p CancelPayload
	err := aisjson.Unmarshal(env.Payload, &p)
	return p, err
}
