// Package policy implements Policy & Constraints (component I): token
// allowlists, slippage/notional hard constraints, approval risk
// thresholds, and plugin/detect allow-lists sourced from a Pack
// document.
package policy

import (
	"math/big"

	"github.com/owliabot/ais-sub001/pkg/docs"
)

// Engine evaluates one Pack's policy against a proposed action.
type Engine struct {
	pack *docs.Pack
}

// New builds a policy Engine from a loaded Pack.
func New(pack *docs.Pack) *Engine {
	return &Engine{pack: pack}
}

// Verdict is the result of evaluating one action against the policy.
type Verdict struct {
	HardBlocked      bool
	HardReason       string
	ApprovalRequired bool
	RiskLevel        int
	RiskTags         []string
}

// Evaluate runs the full policy gate for one action: hard constraints,
// token allowlist, then risk level/tags and approval requirement.
// HardBlocked short-circuits the rest of the verdict (RiskLevel/Tags are
// still populated so callers can log them even on a block).
func (e *Engine) Evaluate(actionKey string, action *docs.Action, params map[string]interface{}) Verdict {
	riskLevelDefault, tags := 0, []string(nil)
	if action != nil {
		riskLevelDefault = action.RiskLevel
		tags = action.RiskTags
	}
	v := Verdict{
		RiskLevel: e.RiskLevel(actionKey, riskLevelDefault),
		RiskTags:  e.RiskTags(actionKey, tags),
	}

	var hc *docs.HardConstraints
	if action != nil {
		hc = action.HardConstraints
	}
	var notional *big.Int
	if raw, ok := params["notional"].(string); ok {
		notional, _ = new(big.Int).SetString(raw, 10)
	}
	slippageBps, _ := params["slippage_bps"].(int)
	if blocked, reason := e.CheckHardConstraints(hc, slippageBps, notional); blocked {
		v.HardBlocked, v.HardReason = true, reason
		return v
	}
	if symbol, ok := params["token_symbol"].(string); ok {
		chain, _ := params["chain"].(string)
		if !e.TokenAllowed(chain, symbol) {
			v.HardBlocked, v.HardReason = true, "token not allow-listed: "+symbol
			return v
		}
	}

	v.ApprovalRequired = e.EvaluateApproval(v.RiskLevel)
	return v
}

// RiskLevel returns the action's declared default risk level. The pack's
// per-action overrides only ever touch risk_tags, never risk_level.
func (e *Engine) RiskLevel(actionKey string, actionDefault int) int {
	return actionDefault
}

// RiskTags unions the action's declared tags with any pack override tags.
func (e *Engine) RiskTags(actionKey string, actionTags []string) []string {
	seen := make(map[string]bool, len(actionTags))
	out := make([]string, 0, len(actionTags))
	for _, t := range actionTags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if e == nil || e.pack == nil {
		return out
	}
	if ov, ok := e.pack.Overrides.Actions[actionKey]; ok {
		for _, t := range ov.RiskTags {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// EvaluateApproval decides auto-execute vs approval-required from the
// pack's approvals thresholds.
func (e *Engine) EvaluateApproval(riskLevel int) (approvalRequired bool) {
	if e == nil || e.pack == nil {
		return riskLevel > 0
	}
	a := e.pack.Policy.Approvals
	if riskLevel <= a.AutoExecuteMaxRiskLevel {
		return false
	}
	if riskLevel >= a.RequireApprovalMinRiskLevel {
		return true
	}
	return riskLevel > a.AutoExecuteMaxRiskLevel
}

// CheckHardConstraints validates slippage/notional against either the
// action's own hard_constraints or the pack's defaults, action wins.
func (e *Engine) CheckHardConstraints(actionConstraints *docs.HardConstraints, slippageBps int, notional *big.Int) (blocked bool, reason string) {
	hc := actionConstraints
	if hc == nil && e != nil && e.pack != nil {
		hc = e.pack.HardConstraintsDefaults
	}
	if hc == nil {
		return false, ""
	}
	if hc.MaxSlippageBps > 0 && slippageBps > hc.MaxSlippageBps {
		return true, "slippage exceeds max_slippage_bps"
	}
	if hc.MaxNotional != "" && notional != nil {
		maxN, ok := new(big.Int).SetString(hc.MaxNotional, 10)
		if ok && notional.Cmp(maxN) > 0 {
			return true, "notional exceeds max_notional"
		}
	}
	return false, ""
}

// TokenAllowed checks the pack's token_policy allowlist for chain+symbol.
// An empty allowlist (nil pack, nil policy) allows everything.
func (e *Engine) TokenAllowed(chain, symbol string) bool {
	if e == nil || e.pack == nil || len(e.pack.TokenPolicy.Allowlist) == 0 {
		return true
	}
	for _, entry := range e.pack.TokenPolicy.Allowlist {
		if entry.Chain == chain && entry.Symbol == symbol {
			return true
		}
	}
	return false
}

// PluginAllowed delegates to the Pack's plugin chain-scope check.
func (e *Engine) PluginAllowed(execType, chain string) bool {
	if e == nil || e.pack == nil {
		return false
	}
	return e.pack.PluginAllowed(execType, chain)
}

// DetectAllowed reports whether provider is enabled for (kind, chain) in
// the pack's providers.detect.enabled list.
func (e *Engine) DetectAllowed(kind, provider, chain string) bool {
	if e == nil || e.pack == nil {
		return false
	}
	for _, d := range e.pack.Providers.Detect.Enabled {
		if d.Kind != kind || d.Provider != provider {
			continue
		}
		if len(d.Chains) == 0 {
			return true
		}
		for _, c := range d.Chains {
			if docs.ChainMatches(c, chain) {
				return true
			}
		}
	}
	return false
}
