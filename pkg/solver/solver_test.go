package solver

import (
	"testing"

	"github.com/owliabot/ais-sub001/pkg/docs"
	"github.com/owliabot/ais-sub001/pkg/plan"
	"github.com/owliabot/ais-sub001/pkg/readiness"
)

type mockProtocols map[string]*docs.Protocol

func (m mockProtocols) Resolve(name string) (*docs.Protocol, bool) {
	p, ok := m[name]
	return p, ok
}

func TestSolveAutoFillsContract(t *testing.T) {
	t.Parallel()
	proto := &docs.Protocol{
		Deployments: []docs.Deployment{
			{Chain: "eip155:1", Contracts: map[string]string{"router": "0xabc"}},
		},
	}
	n := &plan.Node{Chain: "eip155:1", Source: plan.Source{Protocol: "demo"}}
	outcome := readiness.Outcome{State: readiness.Blocked, MissingRefs: []string{"contracts.router"}}

	res := Solve(n, outcome, mockProtocols{"demo": proto}, New())
	if res.NeedUserConfirm {
		t.Fatalf("expected no confirm needed, got %+v", res)
	}
	if len(res.Patches) != 1 || res.Patches[0].Path != "contracts" {
		t.Fatalf("expected one contracts patch, got %+v", res.Patches)
	}
}

func TestSolveRequestsConfirmOnMissingInputs(t *testing.T) {
	t.Parallel()
	n := &plan.Node{Chain: "eip155:1"}
	outcome := readiness.Outcome{State: readiness.Blocked, MissingRefs: []string{"inputs.amount"}}

	res := Solve(n, outcome, mockProtocols{}, New())
	if !res.NeedUserConfirm {
		t.Fatalf("expected need_user_confirm, got %+v", res)
	}
}
