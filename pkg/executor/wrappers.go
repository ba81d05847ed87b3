package executor

import (
	"context"

	"github.com/owliabot/ais-sub001/pkg/docs"
	"github.com/owliabot/ais-sub001/pkg/plan"
	"github.com/owliabot/ais-sub001/pkg/policy"
	"github.com/owliabot/ais-sub001/pkg/value"
)

// ChainDeps are the shared collaborators every wrapper stage needs.
type ChainDeps struct {
	Protocols plan.ProtocolResolver
	Policy    *policy.Engine
}

// strictSuccessExecutor enforces chain-specific success after the inner
// executor returns outputs: EVM receipt.status must not be 0/false/"0x0",
// Solana confirmation.value.err must be null.
type strictSuccessExecutor struct {
	inner Executor
}

func (w *strictSuccessExecutor) Supports(n *plan.Node) bool { return w.inner.Supports(n) }

func (w *strictSuccessExecutor) Execute(ctx context.Context, n *plan.Node, ectx *ExecCtx) (Result, error) {
	res, err := w.inner.Execute(ctx, n, ectx)
	if err != nil || res.Confirm != nil {
		return res, err
	}
	if n.Execution == nil {
		return res, nil
	}
	switch n.Execution.Kind {
	case docs.ExecEvmCall, docs.ExecEvmMulticall:
		if receipt, ok := res.Outputs["receipt"].(map[string]interface{}); ok {
			if !evmReceiptSucceeded(receipt["status"]) {
				return Result{}, &strictSuccessError{Chain: "evm", Detail: "receipt.status indicates failure"}
			}
		}
	case docs.ExecSolanaInstruction:
		if conf, ok := res.Outputs["confirmation"].(map[string]interface{}); ok {
			if v, ok := conf["value"].(map[string]interface{}); ok {
				if v["err"] != nil {
					return Result{}, &strictSuccessError{Chain: "solana", Detail: "confirmation.value.err is non-null"}
				}
			}
		}
	}
	return res, nil
}

func evmReceiptSucceeded(status interface{}) bool {
	switch v := status.(type) {
	case nil:
		return true
	case bool:
		return v
	case string:
		return v != "0x0" && v != "0"
	case int:
		return v != 0
	case int64:
		return v != 0
	default:
		return true
	}
}

type strictSuccessError struct {
	Chain  string
	Detail string
}

func (e *strictSuccessError) Error() string { return e.Chain + " execution failed: " + e.Detail }

// broadcastGateExecutor blocks writes unless Broadcast is enabled,
// returning a compiled preview instead.
type broadcastGateExecutor struct {
	inner Executor
}

func (w *broadcastGateExecutor) Supports(n *plan.Node) bool { return w.inner.Supports(n) }

func (w *broadcastGateExecutor) Execute(ctx context.Context, n *plan.Node, ectx *ExecCtx) (Result, error) {
	if !n.IsReadKind() && !ectx.Broadcast {
		preview := map[string]interface{}{
			"chain": n.Chain,
		}
		if n.Execution != nil {
			if to, err := resolveRef(ectx, n.Execution.Contract); err == nil {
				preview["to"] = to
			}
			preview["method"] = n.Execution.Method
			if val, err := resolveRef(ectx, n.Execution.Value); err == nil {
				preview["value"] = val
			}
		}
		return Result{Confirm: &Confirm{
			Reason:  "broadcast disabled",
			Details: map[string]interface{}{"preview": preview},
		}}, nil
	}
	return w.inner.Execute(ctx, n, ectx)
}

// actionPreflightExecutor verifies a write's requires_queries[] are all
// present in runtime.query before dispatching it.
type actionPreflightExecutor struct {
	inner     Executor
	protocols plan.ProtocolResolver
}

func (w *actionPreflightExecutor) Supports(n *plan.Node) bool { return w.inner.Supports(n) }

func (w *actionPreflightExecutor) Execute(ctx context.Context, n *plan.Node, ectx *ExecCtx) (Result, error) {
	if n.IsReadKind() || n.Source.Action == "" {
		return w.inner.Execute(ctx, n, ectx)
	}
	if w.protocols != nil {
		if proto, ok := w.protocols.Resolve(n.Source.Protocol); ok {
			if action, ok := proto.Actions[n.Source.Action]; ok {
				var missing []string
				for _, q := range action.RequiresQueries {
					if _, ok := ectx.Root.Get("query." + q); !ok {
						missing = append(missing, q)
					}
				}
				if len(missing) > 0 {
					return Result{Confirm: &Confirm{
						Reason:  "required queries not yet populated",
						Details: map[string]interface{}{"missing_queries": missing},
					}}, nil
				}
			}
		}
	}
	return w.inner.Execute(ctx, n, ectx)
}

// policyGateExecutor enforces the plugin allow-list, computes risk
// level/tags, evaluates hard constraints, and gates approval-required
// actions behind need_user_confirm — auto-passing once approved for a
// given workflow_node_id:action_key.
type policyGateExecutor struct {
	inner     Executor
	policy    *policy.Engine
	protocols plan.ProtocolResolver
}

func (w *policyGateExecutor) Supports(n *plan.Node) bool { return w.inner.Supports(n) }

func (w *policyGateExecutor) Execute(ctx context.Context, n *plan.Node, ectx *ExecCtx) (Result, error) {
	if n.IsReadKind() || w.policy == nil {
		return w.inner.Execute(ctx, n, ectx)
	}

	if n.Execution != nil && !docs.IsCoreKind(string(n.Execution.Kind)) {
		if !w.policy.PluginAllowed(string(n.Execution.Kind), n.Chain) {
			return Result{}, &policyBlockedError{Reason: "plugin execution type not allow-listed: " + string(n.Execution.Kind)}
		}
	}

	actionKey := n.Source.Protocol + ":" + n.Source.Action
	var action *docs.Action
	if w.protocols != nil {
		if proto, ok := w.protocols.Resolve(n.Source.Protocol); ok {
			if a, ok := proto.Actions[n.Source.Action]; ok {
				action = &a
			}
		}
	}

	if ectx.Approved != nil && ectx.Approved[n.ID+":"+actionKey] {
		return w.inner.Execute(ctx, n, ectx)
	}

	evalParams := ectx.ResolvedParams
	if _, ok := evalParams["chain"]; !ok {
		evalParams = make(map[string]interface{}, len(ectx.ResolvedParams)+1)
		for k, v := range ectx.ResolvedParams {
			evalParams[k] = v
		}
		evalParams["chain"] = n.Chain
	}
	verdict := w.policy.Evaluate(actionKey, action, evalParams)
	if verdict.HardBlocked {
		return Result{}, &policyBlockedError{Reason: verdict.HardReason}
	}
	if verdict.ApprovalRequired {
		return Result{Confirm: &Confirm{
			Reason: "approval required",
			Details: map[string]interface{}{
				"action_ref": actionKey,
				"chain":      n.Chain,
				"risk_level": verdict.RiskLevel,
				"risk_tags":  verdict.RiskTags,
				"title":      "Approve " + actionKey + " on " + n.Chain,
			},
		}}, nil
	}
	return w.inner.Execute(ctx, n, ectx)
}

type policyBlockedError struct{ Reason string }

func (e *policyBlockedError) Error() string { return "policy: " + e.Reason }

// calculatedFieldsExecutor evaluates an action's calculated_fields (in
// dependency order, derived from inputs[] entries prefixed
// "calculated.") before the action executes, merging results into
// runtime.calculated and nodes.<id>.calculated.
type calculatedFieldsExecutor struct {
	inner     Executor
	protocols plan.ProtocolResolver
}

func (w *calculatedFieldsExecutor) Supports(n *plan.Node) bool { return w.inner.Supports(n) }

func (w *calculatedFieldsExecutor) Execute(ctx context.Context, n *plan.Node, ectx *ExecCtx) (Result, error) {
	if !n.IsReadKind() && n.Source.Action != "" && w.protocols != nil {
		if proto, ok := w.protocols.Resolve(n.Source.Protocol); ok {
			if action, ok := proto.Actions[n.Source.Action]; ok && len(action.CalculatedFields) > 0 {
				calculated := make(map[string]interface{}, len(action.CalculatedFields))
				for _, name := range orderCalculatedFields(action.CalculatedFields) {
					f := action.CalculatedFields[name]
					overrides := map[string]interface{}{
						"params":     ectx.ResolvedParams,
						"calculated": calculated,
					}
					var v interface{}
					var err error
					if f.Jq != "" {
						v, err = value.ApplyJQ(f.Jq, overrides)
					} else {
						v, err = value.Resolve(ectx.Root, value.Cel(f.Expr), value.Options{RootOverrides: overrides, Detect: ectx.Detect})
					}
					if err != nil {
						return Result{}, err
					}
					calculated[name] = v
				}
				patches := []value.Patch{
					{Op: "merge", Path: "calculated", Value: calculated},
					{Op: "merge", Path: "nodes." + n.ID + ".calculated", Value: calculated},
				}
				for _, p := range patches {
					if err := ectx.Root.ApplyUnguarded(p); err != nil {
						return Result{}, err
					}
				}
			}
		}
	}
	return w.inner.Execute(ctx, n, ectx)
}

func orderCalculatedFields(fields map[string]docs.CalculatedField) []string {
	order := make([]string, 0, len(fields))
	visited := make(map[string]bool, len(fields))
	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		f, ok := fields[name]
		if ok {
			for _, in := range f.Inputs {
				const prefix = "calculated."
				if len(in) > len(prefix) && in[:len(prefix)] == prefix {
					dep := in[len(prefix):]
					if _, ok := fields[dep]; ok {
						visit(dep)
					}
				}
			}
		}
		order = append(order, name)
	}
	keys := sortedFieldKeys(fields)
	for _, k := range keys {
		visit(k)
	}
	return order
}

func sortedFieldKeys(m map[string]docs.CalculatedField) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
