// Package solver implements the Solver (component D): given a blocked
// node's missing refs, produce deterministic patches that might unblock
// it, or report that user input is required.
package solver

import (
	"github.com/owliabot/ais-sub001/pkg/docs"
	"github.com/owliabot/ais-sub001/pkg/plan"
	"github.com/owliabot/ais-sub001/pkg/readiness"
	"github.com/owliabot/ais-sub001/pkg/value"
)

// Options configures one Solve call.
type Options struct {
	AutoFillContracts bool // default on; see New
}

// New returns the default Options (auto_fill_contracts enabled).
func New() Options {
	return Options{AutoFillContracts: true}
}

// ProtocolResolver looks up a registered protocol by name, mirroring
// plan.ProtocolResolver so the solver can reach deployments without
// importing the compiler.
type ProtocolResolver interface {
	Resolve(name string) (*docs.Protocol, bool)
}

// Resolution is the solver's verdict for one blocked node.
type Resolution struct {
	Patches        []value.Patch
	NeedUserConfirm bool
	Reason          string
	Details         map[string]interface{}
}

// Solve inspects outcome.MissingRefs and produces patches or a
// need_user_confirm verdict. It never mutates root itself; the caller
// applies the returned patches and re-runs readiness.
func Solve(n *plan.Node, outcome readiness.Outcome, protocols ProtocolResolver, opts Options) Resolution {
	if len(outcome.MissingRefs) == 0 && !outcome.NeedsDetect {
		return Resolution{}
	}

	var patches []value.Patch
	var unresolved []string

	for _, ref := range outcome.MissingRefs {
		name, ok := contractNameFromMissingRef(ref)
		if ok && opts.AutoFillContracts {
			if addr, ok := lookupDeployment(n, protocols, name); ok {
				patches = append(patches, value.Patch{
					Op:    "merge",
					Path:  "contracts",
					Value: map[string]interface{}{name: addr},
				})
				continue
			}
		}
		unresolved = append(unresolved, ref)
	}

	if len(patches) > 0 && len(unresolved) == 0 && !outcome.NeedsDetect {
		return Resolution{Patches: patches}
	}

	if anyInputsMissing(unresolved) || outcome.NeedsDetect || len(unresolved) > 0 {
		return Resolution{
			Patches:         patches,
			NeedUserConfirm: true,
			Reason:          "missing runtime inputs",
			Details:         map[string]interface{}{"missing_refs": unresolved, "needs_detect": outcome.NeedsDetect},
		}
	}

	return Resolution{Patches: patches}
}

// contractNameFromMissingRef extracts "<name>" from a "contracts.<name>"
// missing ref path.
func contractNameFromMissingRef(refPath string) (string, bool) {
	const prefix = "contracts."
	if len(refPath) <= len(prefix) || refPath[:len(prefix)] != prefix {
		return "", false
	}
	return refPath[len(prefix):], true
}

func anyInputsMissing(refs []string) bool {
	const prefix = "inputs."
	for _, r := range refs {
		if len(r) > len(prefix) && r[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func lookupDeployment(n *plan.Node, protocols ProtocolResolver, name string) (string, bool) {
	if protocols == nil || n.Source.Protocol == "" {
		return "", false
	}
	proto, ok := protocols.Resolve(n.Source.Protocol)
	if !ok {
		return "", false
	}
	dep, ok := proto.DeploymentFor(n.Chain)
	if !ok {
		return "", false
	}
	addr, ok := dep.Contracts[name]
	return addr, ok
}

// DetectOverrides resolves out-of-band provider selections supplied via
// ctx.runner_detect_overrides. These are applied as selections, not
// patches, so the caller merges them directly into the evaluation
// options' RootOverrides under "detect_overrides" before re-running
// readiness.
func DetectOverrides(root *value.Root) map[string]interface{} {
	v, ok := root.Get("ctx.runner_detect_overrides")
	if !ok {
		return nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return m
}
