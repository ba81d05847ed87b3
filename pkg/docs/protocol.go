package docs

import "github.com/owliabot/ais-sub001/pkg/value"

// Deployment binds a protocol's contract names to addresses on one chain.
type Deployment struct {
	Chain     string            `yaml:"chain" validate:"required"`
	Contracts map[string]string `yaml:"contracts,omitempty"`
}

// CalculatedField is one action-declared expression resolved into
// runtime.calculated before the action executes.
type CalculatedField struct {
	Expr   string   `yaml:"expr,omitempty"`
	Jq     string   `yaml:"jq,omitempty"` // alternative to expr: a jq filter for structural reshaping, run over {params, calculated}
	Inputs []string `yaml:"inputs,omitempty"` // entries of the form "calculated.<name>" form the dependency edges
}

// ParamDecl documents one Action/Query parameter (informational; actual
// binding happens via the workflow node's Params map).
type ParamDecl struct {
	Name     string `yaml:"name" validate:"required"`
	Type     string `yaml:"type,omitempty"`
	Required bool   `yaml:"required,omitempty"`
}

// ReturnDecl documents one Action/Query return value.
type ReturnDecl struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type,omitempty"`
}

// Action is one protocol-declared write operation.
type Action struct {
	Params           []ParamDecl                 `yaml:"params,omitempty"`
	Returns          []ReturnDecl                `yaml:"returns,omitempty"`
	Execution        map[string]*ExecutionSpec   `yaml:"execution" validate:"required"` // chainPattern -> spec
	RiskLevel        int                         `yaml:"risk_level,omitempty"`
	RiskTags         []string                    `yaml:"risk_tags,omitempty"`
	RequiresQueries  []string                    `yaml:"requires_queries,omitempty"`
	CalculatedFields map[string]CalculatedField  `yaml:"calculated_fields,omitempty"`
	HardConstraints  *HardConstraints            `yaml:"hard_constraints,omitempty"`
}

// Query is one protocol-declared read operation.
type Query struct {
	Params    []ParamDecl               `yaml:"params,omitempty"`
	Returns   []ReturnDecl              `yaml:"returns,omitempty"`
	Execution map[string]*ExecutionSpec `yaml:"execution" validate:"required"`
}

// HardConstraints are non-approvable limits a write must satisfy.
type HardConstraints struct {
	MaxSlippageBps int    `yaml:"max_slippage_bps,omitempty"`
	MaxNotional    string `yaml:"max_notional,omitempty"` // decimal string, chain-token-denominated
}

// Protocol is the `ais/0.0.2` document.
type Protocol struct {
	Meta        Meta                  `yaml:"meta" validate:"required"`
	Deployments []Deployment          `yaml:"deployments,omitempty"`
	Actions     map[string]Action     `yaml:"actions,omitempty"`
	Queries     map[string]Query      `yaml:"queries,omitempty"`
}

// DeploymentFor returns the Deployment entry for chain, if any.
func (p *Protocol) DeploymentFor(chain string) (Deployment, bool) {
	for _, d := range p.Deployments {
		if d.Chain == chain {
			return d, true
		}
	}
	return Deployment{}, false
}

// ExecutionKind is the closed (plus plugin-extensible) set of
// ExecutionSpec shapes the engine recognizes.
type ExecutionKind string

const (
	ExecEvmCall          ExecutionKind = "evm_call"
	ExecEvmRead          ExecutionKind = "evm_read"
	ExecEvmMultiread      ExecutionKind = "evm_multiread"
	ExecEvmMulticall      ExecutionKind = "evm_multicall"
	ExecSolanaInstruction ExecutionKind = "solana_instruction"
	ExecSolanaRead        ExecutionKind = "solana_read"
	ExecBitcoinPsbt       ExecutionKind = "bitcoin_psbt"
	ExecComposite         ExecutionKind = "composite"
)

// IsCoreKind reports whether kind is one of the core (non-plugin) kinds.
func IsCoreKind(kind string) bool {
	switch ExecutionKind(kind) {
	case ExecEvmCall, ExecEvmRead, ExecEvmMultiread, ExecEvmMulticall,
		ExecSolanaInstruction, ExecSolanaRead, ExecBitcoinPsbt, ExecComposite:
		return true
	default:
		return false
	}
}

// CompositeStep is one step of a `composite` ExecutionSpec. Chain
// overrides the parent node's chain for this step only, for composites
// that hop chains mid-sequence (e.g. an EVM read feeding a Solana call).
type CompositeStep struct {
	StepID    string                 `yaml:"step_id" validate:"required"`
	Spec      *ExecutionSpec         `yaml:"spec" validate:"required"`
	Condition string                 `yaml:"condition,omitempty"`
	Chain     string                 `yaml:"chain,omitempty"`
}

// ExecutionSpec is a tagged-by-Kind execution specification. Core kinds
// populate their matching field; a `type` outside the core set is a
// plugin spec and carries its payload in Payload (a generic tree of
// ValueRefs the readiness analyzer walks without knowing its shape).
type ExecutionSpec struct {
	Kind ExecutionKind `yaml:"type" validate:"required"`

	// evm_call / evm_read / evm_multiread / evm_multicall
	Contract *value.Ref            `yaml:"contract,omitempty"`
	Method   string                `yaml:"method,omitempty"`
	Args     map[string]*value.Ref `yaml:"args,omitempty"`
	Value    *value.Ref            `yaml:"value,omitempty"`

	// solana_instruction / solana_read
	Program  *value.Ref            `yaml:"program,omitempty"`
	Instruction string             `yaml:"instruction,omitempty"`
	Accounts []*value.Ref          `yaml:"accounts,omitempty"`

	// bitcoin_psbt: no executor registered; kept only to round-trip the
	// schema; a node using it fails at run time with "no executor
	// registered" when the engine resolves its executor.
	Psbt *value.Ref `yaml:"psbt,omitempty"`

	// composite
	Steps []CompositeStep `yaml:"steps,omitempty"`

	// plugin extension: any non-core `type`; Payload is a generic
	// object ValueRef tree walked field-by-field by the readiness
	// analyzer and passed through as-is to the plugin executor.
	PluginType string     `yaml:"-"`
	Payload    *value.Ref `yaml:"payload,omitempty"`
}

// Walk returns every ValueRef embedded in the spec, in a stable order,
// for the readiness analyzer's binding-resolution pass.
func (s *ExecutionSpec) Walk() []*value.Ref {
	var out []*value.Ref
	add := func(r *value.Ref) {
		if r != nil {
			out = append(out, r)
		}
	}
	add(s.Contract)
	for _, k := range sortedKeys(s.Args) {
		add(s.Args[k])
	}
	add(s.Value)
	add(s.Program)
	out = append(out, s.Accounts...)
	add(s.Psbt)
	add(s.Payload)
	return out
}

func sortedKeys(m map[string]*value.Ref) []string {
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
