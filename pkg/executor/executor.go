// Package executor implements the Executor Chain (component F): a
// registry of chain-specific inner executors wrapped, outermost to
// innermost, by StrictSuccess, BroadcastGate, ActionPreflight,
// PolicyGate and CalculatedFields — mirroring the teacher's
// TemplateExecutorWrapper composition-over-registration idiom.
package executor

import (
	"context"

	"github.com/owliabot/ais-sub001/pkg/plan"
	"github.com/owliabot/ais-sub001/pkg/value"
)

// Confirm carries a need_user_confirm verdict back to the scheduler.
type Confirm struct {
	Reason  string
	Details map[string]interface{}
}

// Result is the outcome of one Execute call.
type Result struct {
	Outputs   map[string]interface{}
	Patches   []value.Patch
	Telemetry map[string]interface{}
	Confirm   *Confirm // non-nil ⇒ node pauses, Outputs/Patches ignored
}

// ExecCtx is the per-call context threaded through the executor chain.
type ExecCtx struct {
	RunID          string
	Root           *value.Root
	ResolvedParams map[string]interface{}
	Detect         value.DetectResolver
	Broadcast      bool // BroadcastGateExecutor reads this
	Approved       map[string]bool // workflow_node_id:action_key -> auto-pass cache, shared across the run
}

// Executor is the interface every chain-specific and wrapper executor
// implements, mirroring the teacher's Executor(Execute/Validate) shape
// adapted to the plan.Node/ExecCtx domain.
type Executor interface {
	Supports(n *plan.Node) bool
	Execute(ctx context.Context, n *plan.Node, ectx *ExecCtx) (Result, error)
}

// Registry holds an ordered list of chain-specific executors; the first
// whose Supports returns true wins, mirroring the teacher's Manager
// registration pattern but resolved by predicate rather than by a
// node-type string key.
type Registry struct {
	executors []Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an executor to the registry. Order is significant:
// the first matching Supports wins.
func (r *Registry) Register(e Executor) {
	r.executors = append(r.executors, e)
}

// Resolve returns the first executor supporting n.
func (r *Registry) Resolve(n *plan.Node) (Executor, bool) {
	for _, e := range r.executors {
		if e.Supports(n) {
			return e, true
		}
	}
	return nil, false
}

// Chain builds the standard wrapper pipeline around inner, in the order
// specified by the scheduling design: StrictSuccess wraps outermost,
// then BroadcastGate, ActionPreflight, PolicyGate, CalculatedFields,
// with inner innermost.
func Chain(inner Executor, deps ChainDeps) Executor {
	wrapped := inner
	wrapped = &calculatedFieldsExecutor{inner: wrapped, protocols: deps.Protocols}
	wrapped = &policyGateExecutor{inner: wrapped, policy: deps.Policy, protocols: deps.Protocols}
	wrapped = &actionPreflightExecutor{inner: wrapped, protocols: deps.Protocols}
	wrapped = &broadcastGateExecutor{inner: wrapped}
	wrapped = &strictSuccessExecutor{inner: wrapped}
	return wrapped
}
