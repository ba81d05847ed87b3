package readiness

import (
	"testing"

	"github.com/owliabot/ais-sub001/pkg/docs"
	"github.com/owliabot/ais-sub001/pkg/plan"
	"github.com/owliabot/ais-sub001/pkg/value"
)

func TestCheckReadyWithLitParam(t *testing.T) {
	t.Parallel()
	root := value.NewRoot()
	n := &plan.Node{
		ID:       "q1",
		Kind:     plan.KindQueryRef,
		Bindings: plan.Bindings{Params: map[string]*value.Ref{"x": value.Lit(7)}},
		Execution: &docs.ExecutionSpec{Kind: docs.ExecEvmRead},
	}
	out := Check(root, n, value.Options{})
	if out.State != Ready {
		t.Fatalf("expected ready, got %v errs=%v missing=%v", out.State, out.Errors, out.MissingRefs)
	}
	if out.ResolvedParams["x"] != 7 {
		t.Fatalf("expected resolved param 7, got %v", out.ResolvedParams["x"])
	}
}

func TestCheckBlockedMissingRef(t *testing.T) {
	t.Parallel()
	root := value.NewRoot()
	n := &plan.Node{
		ID:       "q1",
		Kind:     plan.KindQueryRef,
		Bindings: plan.Bindings{Params: map[string]*value.Ref{"x": value.RefPath("contracts.router")}},
	}
	out := Check(root, n, value.Options{})
	if out.State != Blocked {
		t.Fatalf("expected blocked, got %v", out.State)
	}
	if len(out.MissingRefs) != 1 || out.MissingRefs[0] != "contracts.router" {
		t.Fatalf("expected missing_refs [contracts.router], got %v", out.MissingRefs)
	}
}

func TestCheckSkippedOnFalseCondition(t *testing.T) {
	t.Parallel()
	root := value.NewRoot()
	n := &plan.Node{
		ID:         "q1",
		Kind:       plan.KindQueryRef,
		Conditions: []*value.Ref{value.Lit(false)},
	}
	out := Check(root, n, value.Options{})
	if out.State != Skipped {
		t.Fatalf("expected skipped, got %v", out.State)
	}
}
