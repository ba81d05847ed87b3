// Package plan implements the Plan Compiler (component B): expanding a
// validated Workflow into a topologically sorted DAG of PlanNodes, with
// composite-step expansion, chain-pattern ExecutionSpec selection, and
// implicit dependency mining from `ref` paths.
package plan

import (
	"github.com/owliabot/ais-sub001/pkg/docs"
	"github.com/owliabot/ais-sub001/pkg/value"
)

// Kind is the PlanNode's execution category.
type Kind string

const (
	KindActionRef Kind = "action_ref"
	KindQueryRef  Kind = "query_ref"
	KindExecution Kind = "execution"
)

// WriteMode is how a node's outputs merge into the Runtime Root.
type WriteMode string

const (
	WriteSet   WriteMode = "set"
	WriteMerge WriteMode = "merge"
)

// Write is one target path a node's outputs land at.
type Write struct {
	Path string
	Mode WriteMode
}

// Retry is the node's read-kind retry policy.
type Retry struct {
	IntervalMs  int
	MaxAttempts int    // 0 = unbounded
	Backoff     string // fixed | exponential
}

// Source traces a PlanNode back to its originating workflow node.
type Source struct {
	Workflow string
	NodeID   string
	Protocol string
	Action   string // exactly one of Action/Query is set
	Query    string
	StepID   string // non-empty for composite-expanded steps
}

// Bindings is the node's resolved-parameter binding set.
type Bindings struct {
	Params map[string]*value.Ref
}

// Node is one atomic unit of execution after composite expansion.
type Node struct {
	ID            string
	Chain         string
	Kind          Kind
	Deps          []string
	Conditions    []*value.Ref // ANDed together; composite step expansion appends the step condition to the parent's
	Assert        *value.Ref
	AssertMessage string
	Until         *value.Ref
	RetryPolicy   *Retry
	TimeoutMs     int
	Bindings      Bindings
	Execution     *docs.ExecutionSpec
	Writes        []Write
	Source        Source
}

// IsReadKind reports whether node is a read for concurrency/retry
// purposes: query_ref nodes, or executions of evm_read/evm_rpc/
// evm_multiread/solana_read type.
func (n *Node) IsReadKind() bool {
	if n.Kind == KindQueryRef {
		return true
	}
	if n.Execution == nil {
		return false
	}
	switch n.Execution.Kind {
	case docs.ExecEvmRead, "evm_rpc", docs.ExecEvmMultiread, docs.ExecSolanaRead:
		return true
	default:
		return false
	}
}

// Plan is the compiled, ordered list of PlanNodes.
type Plan struct {
	Schema string // "ais-plan/0.0.3"
	Nodes  []*Node
}

// NodeByID returns the node with the given id, or nil.
func (p *Plan) NodeByID(id string) *Node {
	for _, n := range p.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// SchemaVersion is the canonical plan schema version (spec.md §9 open
// question: source mixes 0.0.2/0.0.3 across tests; 0.0.3 is canonical).
const SchemaVersion = "ais-plan/0.0.3"
