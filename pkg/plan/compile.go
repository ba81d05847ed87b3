package plan

import (
	"sort"
	"strings"

	"github.com/owliabot/ais-sub001/pkg/aiserr"
	"github.com/owliabot/ais-sub001/pkg/docs"
	"github.com/owliabot/ais-sub001/pkg/value"
)

// ProtocolResolver returns the registered Protocol document for name/version.
type ProtocolResolver interface {
	Resolve(name string) (*docs.Protocol, bool)
}

// Compile expands wf into a topologically sorted Plan. Grounded on the
// teacher's BuildDAG/TopologicalSort (pkg/engine/dag_utils.go)'s
// Kahn's-algorithm wave approach, adapted to flatten waves into a single
// stable source-order sequence instead of returning wave groups, since
// the scheduler (component E) computes its own readiness-driven ready
// set rather than consuming pre-batched waves.
func Compile(wf *docs.Workflow, protocols ProtocolResolver) (*Plan, error) {
	if err := wf.Validate(); err != nil {
		return nil, &aiserr.PlanBuildError{WorkflowID: wf.Meta.Name, Reason: "workflow validation", Err: err}
	}

	// Phase 1: build one PlanNode (or composite-expanded chain) per
	// workflow node, not yet ordered.
	var all []*Node
	sourceOrder := map[string]int{}
	for i, wn := range wf.Nodes {
		chain := wn.Chain
		if chain == "" {
			chain = wf.DefaultChain
		}
		proto, ok := protocols.Resolve(wn.Protocol)
		if !ok {
			return nil, &aiserr.PlanBuildError{WorkflowID: wf.Meta.Name, Reason: "unknown protocol: " + wn.Protocol}
		}
		spec, kind, err := selectExecutionSpec(proto, wn, chain)
		if err != nil {
			return nil, &aiserr.PlanBuildError{WorkflowID: wf.Meta.Name, Reason: err.Error()}
		}

		var expanded []*Node
		if spec.Kind == docs.ExecComposite {
			expanded, err = expandComposite(wn, chain, spec)
			if err != nil {
				return nil, &aiserr.PlanBuildError{WorkflowID: wf.Meta.Name, Reason: err.Error()}
			}
		} else {
			expanded = []*Node{newLeafNode(wn, chain, kind, spec)}
		}

		for _, n := range expanded {
			sourceOrder[n.ID] = i
			all = append(all, n)
		}
	}

	// Phase 2: dependency mining — explicit deps (attached only to the
	// first step of a composite chain; the node carrying the parent
	// workflow-node id is the last step) plus implicit deps harvested from every
	// embedded ref path of the form nodes.<id>.outputs….
	byID := make(map[string]*Node, len(all))
	for _, n := range all {
		byID[n.ID] = n
	}
	for _, n := range all {
		implicit := map[string]bool{}
		collectNodeRefDeps(n, implicit)
		for dep := range implicit {
			if dep == n.ID {
				continue
			}
			if _, ok := byID[dep]; !ok {
				continue // dangling ref: surfaces as missing_ref at readiness time, not a build error
			}
			if !containsStr(n.Deps, dep) {
				n.Deps = append(n.Deps, dep)
			}
		}
	}

	// Phase 3: stable topological sort by Kahn's algorithm, source-order
	// tiebreak among nodes simultaneously ready.
	sorted, err := topoSort(all, sourceOrder)
	if err != nil {
		return nil, &aiserr.PlanBuildError{WorkflowID: wf.Meta.Name, Reason: err.Error()}
	}

	return &Plan{Schema: SchemaVersion, Nodes: sorted}, nil
}

func newLeafNode(wn docs.WorkflowNode, chain string, kind Kind, spec *docs.ExecutionSpec) *Node {
	n := &Node{
		ID:        wn.ID,
		Chain:     chain,
		Kind:      kind,
		Deps:      append([]string{}, wn.Deps...),
		Bindings:  Bindings{Params: wn.Params},
		Execution: spec,
		Source: Source{
			NodeID:   wn.ID,
			Protocol: wn.Protocol,
			Action:   wn.Action,
			Query:    wn.Query,
		},
	}
	if wn.Condition != "" {
		n.Conditions = []*value.Ref{value.Cel(wn.Condition)}
	}
	if wn.Assert != "" {
		n.Assert = value.Cel(wn.Assert)
		n.AssertMessage = wn.AssertMessage
	}
	if wn.Until != "" {
		n.Until = value.Cel(wn.Until)
	}
	if wn.Retry != nil {
		n.RetryPolicy = &Retry{IntervalMs: wn.Retry.IntervalMs, MaxAttempts: wn.Retry.MaxAttempts, Backoff: wn.Retry.Backoff}
	}
	n.TimeoutMs = wn.TimeoutMs

	if kind == KindQueryRef {
		n.Writes = []Write{{Path: "nodes." + n.ID + ".outputs", Mode: WriteSet}}
	} else {
		n.Writes = []Write{{Path: "nodes." + n.ID + ".outputs", Mode: WriteSet}}
	}
	return n
}

// expandComposite expands a composite ExecutionSpec into a dependent
// chain of PlanNodes. Step N+1 depends on step N; the last step retains
// the parent id, assert, and a merge-write to nodes.<id>.outputs;
// intermediate steps write only nodes.<id>.outputs.steps.<stepId> with
// set. Nested composites are rejected.
func expandComposite(wn docs.WorkflowNode, chain string, spec *docs.ExecutionSpec) ([]*Node, error) {
	var out []*Node
	var prevID string
	for i, step := range spec.Steps {
		if step.Spec.Kind == docs.ExecComposite {
			return nil, &compositeNestError{NodeID: wn.ID}
		}
		last := i == len(spec.Steps)-1
		id := wn.ID + "__" + step.StepID
		if last {
			id = wn.ID
		}
		stepChain := chain
		if step.Chain != "" {
			stepChain = step.Chain
		}
		n := &Node{
			ID:        id,
			Chain:     stepChain,
			Kind:      KindActionRef,
			Bindings:  Bindings{Params: wn.Params},
			Execution: step.Spec,
			Source:    Source{NodeID: wn.ID, Protocol: wn.Protocol, Action: wn.Action, StepID: step.StepID},
		}
		if prevID != "" {
			n.Deps = []string{prevID}
		} else {
			n.Deps = append([]string{}, wn.Deps...)
		}
		var conds []*value.Ref
		if wn.Condition != "" {
			conds = append(conds, value.Cel(wn.Condition))
		}
		if step.Condition != "" {
			conds = append(conds, value.Cel(step.Condition))
		}
		n.Conditions = conds

		if last {
			if wn.Assert != "" {
				n.Assert = value.Cel(wn.Assert)
				n.AssertMessage = wn.AssertMessage
			}
			n.Writes = []Write{{Path: "nodes." + wn.ID + ".outputs", Mode: WriteMerge}}
		} else {
			n.Writes = []Write{{Path: "nodes." + wn.ID + ".outputs.steps." + step.StepID, Mode: WriteSet}}
		}

		out = append(out, n)
		prevID = n.ID
	}
	return out, nil
}

type compositeNestError struct{ NodeID string }

func (e *compositeNestError) Error() string {
	return "nested composite execution specs are not allowed (node " + e.NodeID + ")"
}

// selectExecutionSpec picks the Action/Query's ExecutionSpec matching
// chain, ranked exact > "<ns>:*" > "*".
func selectExecutionSpec(proto *docs.Protocol, wn docs.WorkflowNode, chain string) (*docs.ExecutionSpec, Kind, error) {
	var table map[string]*docs.ExecutionSpec
	var kind Kind
	if wn.Action != "" {
		action, ok := proto.Actions[wn.Action]
		if !ok {
			return nil, "", &unknownOperationError{Protocol: wn.Protocol, Name: wn.Action}
		}
		table, kind = action.Execution, KindActionRef
	} else {
		query, ok := proto.Queries[wn.Query]
		if !ok {
			return nil, "", &unknownOperationError{Protocol: wn.Protocol, Name: wn.Query}
		}
		table, kind = query.Execution, KindQueryRef
	}

	var best *docs.ExecutionSpec
	bestRank := 99
	for pattern, spec := range table {
		if !docs.ChainMatches(pattern, chain) {
			continue
		}
		rank := docs.ChainPatternRank(pattern)
		if rank < bestRank {
			bestRank, best = rank, spec
		}
	}
	if best == nil {
		return nil, "", &unmatchedChainError{Chain: chain}
	}
	return best, kind, nil
}

type unknownOperationError struct {
	Protocol string
	Name     string
}

func (e *unknownOperationError) Error() string { return "unknown operation " + e.Protocol + "/" + e.Name }

type unmatchedChainError struct{ Chain string }

func (e *unmatchedChainError) Error() string { return "no execution spec matches chain " + e.Chain }

// collectNodeRefDeps walks every ValueRef embedded in n (bindings,
// execution spec, condition/assert/until) and records the <id> segment
// of any "nodes.<id>.outputs…" ref path into deps.
func collectNodeRefDeps(n *Node, deps map[string]bool) {
	visit := func(r *value.Ref) { walkRefPaths(r, deps) }
	for _, p := range n.Bindings.Params {
		visit(p)
	}
	if n.Execution != nil {
		for _, r := range n.Execution.Walk() {
			visit(r)
		}
	}
	for _, c := range n.Conditions {
		visit(c)
	}
	visit(n.Assert)
	visit(n.Until)
}

func walkRefPaths(r *value.Ref, deps map[string]bool) {
	if r == nil {
		return
	}
	switch r.Kind {
	case value.KindRef:
		recordNodeDep(r.Path, deps)
	case value.KindCel:
		recordCelNodeDeps(r.Cel, deps)
	case value.KindObject:
		for _, sub := range r.Object {
			walkRefPaths(sub, deps)
		}
	case value.KindArray:
		for _, sub := range r.Array {
			walkRefPaths(sub, deps)
		}
	case value.KindDetect:
		if r.Detect != nil {
			// candidates/constraints are opaque values, not ValueRefs; nothing to mine.
		}
	}
}

func recordNodeDep(path string, deps map[string]bool) {
	const prefix = "nodes."
	if !strings.HasPrefix(path, prefix) {
		return
	}
	rest := path[len(prefix):]
	if i := strings.IndexByte(rest, '.'); i > 0 {
		deps[rest[:i]] = true
	}
}

// recordCelNodeDeps scans a cel expression's source text for
// "nodes.<id>" occurrences. This is a textual best-effort scan (the
// compiler does not parse expr-lang ASTs to mine deps) matching the
// teacher's own preference for simple, explicit dependency derivation
// over AST introspection.
func recordCelNodeDeps(expr string, deps map[string]bool) {
	const needle = "nodes."
	for i := 0; i+len(needle) <= len(expr); i++ {
		if expr[i:i+len(needle)] != needle {
			continue
		}
		rest := expr[i+len(needle):]
		j := 0
		for j < len(rest) && (isIdentByte(rest[j])) {
			j++
		}
		if j > 0 {
			deps[rest[:j]] = true
		}
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func containsStr(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// topoSort performs Kahn's algorithm with a stable, source-order
// tiebreak among simultaneously-ready nodes (rather than returning wave
// groups as the teacher's TopologicalSort does, since the compiler here
// needs one flat, deterministic sequence).
func topoSort(nodes []*Node, sourceOrder map[string]int) ([]*Node, error) {
	byID := make(map[string]*Node, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	children := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		inDegree[n.ID] = 0
	}
	for _, n := range nodes {
		for _, dep := range n.Deps {
			inDegree[n.ID]++
			children[dep] = append(children[dep], n.ID)
		}
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return sourceOrder[ready[i]] < sourceOrder[ready[j]] })

	var out []*Node
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, byID[id])

		var newlyReady []string
		for _, child := range children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				newlyReady = append(newlyReady, child)
			}
		}
		sort.Slice(newlyReady, func(i, j int) bool { return sourceOrder[newlyReady[i]] < sourceOrder[newlyReady[j]] })
		ready = append(ready, newlyReady...)
		sort.SliceStable(ready, func(i, j int) bool { return sourceOrder[ready[i]] < sourceOrder[ready[j]] })
	}

	if len(out) != len(nodes) {
		return nil, &cycleError{}
	}
	return out, nil
}

type cycleError struct{}

func (e *cycleError) Error() string { return "cycle detected in plan graph" }
