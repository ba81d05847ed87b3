package command

import (
	"strings"
	"testing"

	"github.com/owliabot/ais-sub001/pkg/value"
)

func TestReaderParsesEnvelope(t *testing.T) {
	t.Parallel()
	r := NewReader(strings.NewReader(`{"id":"c1","kind":"cancel","payload":{"reason":"user abort"}}`+"\n"), nil)
	out, ok := r.Next()
	if !ok || out.Rejected || out.Envelope.Kind != KindCancel {
		t.Fatalf("unexpected outcome: %+v ok=%v", out, ok)
	}
}

func TestReaderRejectsDuplicateID(t *testing.T) {
	t.Parallel()
	line := `{"id":"c1","kind":"cancel","payload":{}}` + "\n"
	r := NewReader(strings.NewReader(line+line), nil)
	r.Next()
	out, ok := r.Next()
	if !ok || !out.Rejected || out.Reason != "duplicate command id" {
		t.Fatalf("expected duplicate rejection, got %+v", out)
	}
}

func TestReaderSeedsSeenFromCheckpoint(t *testing.T) {
	t.Parallel()
	r := NewReader(strings.NewReader(`{"id":"c1","kind":"cancel","payload":{}}`+"\n"), []string{"c1"})
	out, ok := r.Next()
	if !ok || !out.Rejected {
		t.Fatalf("expected seeded id to be rejected, got %+v", out)
	}
}

func TestApplyPatchesGuardRejectsDisallowedRoot(t *testing.T) {
	t.Parallel()
	root := value.NewRoot()
	guard := value.DefaultGuard()
	res := ApplyPatches(root, guard, []value.Patch{
		{Op: "set", Path: "inputs.amount", Value: 5},
		{Op: "set", Path: "nodes.n1.outputs", Value: 1},
	})
	if res.Applied != 1 || res.Rejected != 1 {
		t.Fatalf("expected 1 applied, 1 rejected, got %+v", res)
	}
	if res.PatchSummaryHash == "" {
		t.Fatalf("expected non-empty patch summary hash")
	}
}
