// Package docs holds the Go struct shapes of the three document kinds the
// engine consumes: Protocol (ais/0.0.2), Pack (ais-pack/0.0.2), and
// Workflow (ais-flow/0.0.3). load.go decodes them from YAML and checks
// their struct tags; no further schema validation is done here. These
// types are the shape the loader hands the compiler.
package docs

import (
	"github.com/owliabot/ais-sub001/pkg/value"
)

// InputDecl describes one declared workflow input.
type InputDecl struct {
	Type     string      `yaml:"type" validate:"required"`
	Required bool        `yaml:"required,omitempty"`
	Default  interface{} `yaml:"default,omitempty"`
}

// Meta is the common metadata block shared by all three document kinds.
type Meta struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version,omitempty"`
}

// ImportDecl references a Protocol document a Workflow depends on.
type ImportDecl struct {
	Protocol string `yaml:"protocol" validate:"required"`
	Path     string `yaml:"path" validate:"required"`
}

// WorkflowNode is one node of a workflow's node list (pre-compilation;
// the Plan Compiler turns these into plan.PlanNode, expanding composites).
type WorkflowNode struct {
	ID       string                 `yaml:"id" validate:"required"`
	Protocol string                 `yaml:"protocol" validate:"required"`
	Action   string                 `yaml:"action,omitempty"`
	Query    string                 `yaml:"query,omitempty"`
	Chain    string                 `yaml:"chain,omitempty"`
	Deps     []string               `yaml:"deps,omitempty"`
	Condition string                `yaml:"condition,omitempty"`
	Assert    string                `yaml:"assert,omitempty"`
	AssertMessage string            `yaml:"assert_message,omitempty"`
	Until     string                `yaml:"until,omitempty"`
	Retry     *RetryDecl            `yaml:"retry,omitempty"`
	TimeoutMs int                   `yaml:"timeout_ms,omitempty"`
	Params    map[string]*value.Ref `yaml:"params,omitempty"`
}

// RetryDecl is the workflow-declared retry policy for a node.
type RetryDecl struct {
	IntervalMs  int    `yaml:"interval_ms" validate:"required"`
	MaxAttempts int    `yaml:"max_attempts,omitempty"`
	Backoff     string `yaml:"backoff,omitempty"` // fixed | exponential
}

// Workflow is the `ais-flow/0.0.3` document.
type Workflow struct {
	Meta         Meta                   `yaml:"meta" validate:"required"`
	DefaultChain string                 `yaml:"default_chain,omitempty"`
	Inputs       map[string]InputDecl   `yaml:"inputs,omitempty"`
	Nodes        []WorkflowNode         `yaml:"nodes" validate:"required,min=1"`
	RequiresPack string                 `yaml:"requires_pack,omitempty"`
	Outputs      map[string]*value.Ref  `yaml:"outputs,omitempty"`
	Imports      Imports                `yaml:"imports,omitempty"`
}

// Imports groups the document's import declarations.
type Imports struct {
	Protocols []ImportDecl `yaml:"protocols,omitempty"`
}

// Validate checks structural invariants not expressible via struct tags:
// unique node ids, deps reference existing nodes, and that every node
// names exactly one of Action or Query.
func (w *Workflow) Validate() error {
	seen := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if n.ID == "" {
			return &ValidationError{Field: "nodes[].id", Message: "node id is required"}
		}
		if seen[n.ID] {
			return &ValidationError{Field: "nodes[].id", Message: "duplicate node id: " + n.ID}
		}
		seen[n.ID] = true
		if (n.Action == "") == (n.Query == "") {
			return &ValidationError{Field: "nodes[" + n.ID + "]", Message: "exactly one of action or query is required"}
		}
	}
	for _, n := range w.Nodes {
		for _, dep := range n.Deps {
			if !seen[dep] {
				return &ValidationError{Field: "nodes[" + n.ID + "].deps", Message: "dependency references unknown node: " + dep}
			}
		}
	}
	return nil
}

// ValidationError reports a single schema/structural validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }
