// Package readiness implements the Readiness Analyzer (component C):
// classifying a plan.Node as ready, blocked, or skipped against the
// current Runtime Root.
package readiness

import (
	"context"

	"github.com/owliabot/ais-sub001/pkg/aiserr"
	"github.com/owliabot/ais-sub001/pkg/plan"
	"github.com/owliabot/ais-sub001/pkg/value"
)

// State is the node's readiness classification.
type State string

const (
	Ready   State = "ready"
	Blocked State = "blocked"
	Skipped State = "skipped"
)

// Outcome is the result of one readiness pass, grounded on spec.md's
// "model these as a sum type ReadinessOutcome" design note (§9) — in
// place of the source's typed-exception control flow.
type Outcome struct {
	State          State
	MissingRefs    []string
	NeedsDetect    bool
	Errors         []error
	ResolvedParams map[string]interface{}
}

// Check runs the 3-phase classification synchronously. A detect
// resolution that would require awaiting is not attempted: with no
// resolver in opts it is reported via NeedsDetect, with a resolver it is
// reported as a missing ref.
func Check(root *value.Root, n *plan.Node, opts value.Options) Outcome {
	return check(context.Background(), root, n, opts, false)
}

// CheckAsync runs the 3-phase classification, awaiting detect
// resolution where supplied. Sync and async must be semantically
// equivalent for every other phase.
func CheckAsync(ctx context.Context, root *value.Root, n *plan.Node, opts value.Options) Outcome {
	return check(ctx, root, n, opts, true)
}

func check(ctx context.Context, root *value.Root, n *plan.Node, opts value.Options, async bool) Outcome {
	// Phase 1: condition.
	for _, cond := range n.Conditions {
		v, err := evalOne(ctx, root, cond, opts, async)
		if err != nil {
			return Outcome{State: Blocked, Errors: []error{err}}
		}
		b, ok := v.(bool)
		if !ok {
			return Outcome{State: Blocked, Errors: []error{&conditionTypeError{Got: v}}}
		}
		if !b {
			return Outcome{State: Skipped}
		}
	}

	// Phase 2: bindings.params.
	resolved := make(map[string]interface{}, len(n.Bindings.Params))
	var missing []string
	var needsDetect bool
	var errs []error
	for _, key := range sortedParamKeys(n.Bindings.Params) {
		v, err := evalOne(ctx, root, n.Bindings.Params[key], opts, async)
		if err != nil {
			recordParamError(err, &missing, &needsDetect, &errs)
			continue
		}
		resolved[key] = v
	}
	if len(missing) > 0 || needsDetect || len(errs) > 0 {
		return Outcome{State: Blocked, MissingRefs: missing, NeedsDetect: needsDetect, Errors: errs}
	}

	// Phase 3: walk the ExecutionSpec's embedded refs with
	// root_overrides = {params: resolved}.
	overriddenOpts := opts
	mergedOverrides := map[string]interface{}{"params": resolved}
	for k, v := range opts.RootOverrides {
		mergedOverrides[k] = v
	}
	overriddenOpts.RootOverrides = mergedOverrides

	if n.Execution != nil {
		for _, ref := range n.Execution.Walk() {
			_, err := evalOne(ctx, root, ref, overriddenOpts, async)
			if err != nil {
				recordParamError(err, &missing, &needsDetect, &errs)
			}
		}
	}
	if len(missing) > 0 || needsDetect || len(errs) > 0 {
		return Outcome{State: Blocked, MissingRefs: missing, NeedsDetect: needsDetect, Errors: errs}
	}

	return Outcome{State: Ready, ResolvedParams: resolved}
}

func evalOne(ctx context.Context, root *value.Root, ref *value.Ref, opts value.Options, async bool) (interface{}, error) {
	if async {
		return value.ResolveAsync(ctx, root, ref, opts)
	}
	return value.Resolve(root, ref, opts)
}

func recordParamError(err error, missing *[]string, needsDetect *bool, errs *[]error) {
	if mr, ok := err.(*aiserr.MissingRefError); ok {
		*missing = append(*missing, mr.RefPath)
		return
	}
	if err == aiserr.ErrDetectUnsupported {
		*needsDetect = true
		return
	}
	*errs = append(*errs, err)
}

type conditionTypeError struct{ Got interface{} }

func (e *conditionTypeError) Error() string { return "condition must evaluate to a boolean" }

func sortedParamKeys(m map[string]*value.Ref) []string {
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
