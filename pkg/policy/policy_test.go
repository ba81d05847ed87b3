package policy

import (
	"math/big"
	"testing"

	"github.com/owliabot/ais-sub001/pkg/docs"
)

func TestEvaluateApprovalThresholds(t *testing.T) {
	t.Parallel()
	pack := &docs.Pack{Policy: docs.PolicyDecl{Approvals: docs.Approvals{
		AutoExecuteMaxRiskLevel:     1,
		RequireApprovalMinRiskLevel: 3,
	}}}
	e := New(pack)
	if e.EvaluateApproval(1) {
		t.Fatalf("risk 1 should auto-execute")
	}
	if !e.EvaluateApproval(3) {
		t.Fatalf("risk 3 should require approval")
	}
}

func TestCheckHardConstraintsSlippage(t *testing.T) {
	t.Parallel()
	e := New(&docs.Pack{})
	hc := &docs.HardConstraints{MaxSlippageBps: 50}
	blocked, reason := e.CheckHardConstraints(hc, 100, big.NewInt(0))
	if !blocked || reason == "" {
		t.Fatalf("expected slippage block, got blocked=%v reason=%q", blocked, reason)
	}
}

func TestTokenAllowedEmptyAllowlist(t *testing.T) {
	t.Parallel()
	e := New(&docs.Pack{})
	if !e.TokenAllowed("eip155:1", "USDC") {
		t.Fatalf("empty allowlist should allow everything")
	}
}

func TestEvaluateHardBlockShortCircuitsApproval(t *testing.T) {
	t.Parallel()
	pack := &docs.Pack{Policy: docs.PolicyDecl{Approvals: docs.Approvals{
		AutoExecuteMaxRiskLevel:     5,
		RequireApprovalMinRiskLevel: 5,
	}}}
	e := New(pack)
	action := &docs.Action{
		RiskLevel:       0,
		HardConstraints: &docs.HardConstraints{MaxSlippageBps: 50},
	}
	v := e.Evaluate("dex:swap", action, map[string]interface{}{"slippage_bps": 100})
	if !v.HardBlocked {
		t.Fatalf("expected hard block on slippage")
	}
	if v.ApprovalRequired {
		t.Fatalf("approval should not be evaluated once hard blocked")
	}
}

func TestEvaluateApprovalRequiredByRiskLevel(t *testing.T) {
	t.Parallel()
	pack := &docs.Pack{Policy: docs.PolicyDecl{Approvals: docs.Approvals{
		AutoExecuteMaxRiskLevel:     1,
		RequireApprovalMinRiskLevel: 2,
	}}}
	e := New(pack)
	action := &docs.Action{RiskLevel: 3, RiskTags: []string{"irreversible"}}
	v := e.Evaluate("dex:swap", action, map[string]interface{}{})
	if v.HardBlocked {
		t.Fatalf("did not expect a hard block")
	}
	if !v.ApprovalRequired {
		t.Fatalf("expected approval required at risk level 3")
	}
	if len(v.RiskTags) != 1 || v.RiskTags[0] != "irreversible" {
		t.Fatalf("expected risk tags to carry through, got %v", v.RiskTags)
	}
}
