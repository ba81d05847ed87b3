package executor

import (
	"context"

	"github.com/owliabot/ais-sub001/pkg/docs"
	"github.com/owliabot/ais-sub001/pkg/plan"
	"github.com/owliabot/ais-sub001/pkg/value"
)

// EvmClient is the capability surface an EVM inner executor needs. A
// production implementation backs this with go-ethereum's ethclient; no
// such client ships in-tree (see SPEC_FULL.md's "Named-but-not-grounded"
// entry) so callers supply their own or use NewMockEvmClient for tests.
type EvmClient interface {
	Call(ctx context.Context, chain string, contract, method string, args map[string]interface{}) (interface{}, error)
	SendTransaction(ctx context.Context, chain string, contract, method string, args map[string]interface{}, value interface{}) (receipt map[string]interface{}, err error)
	MultiCall(ctx context.Context, chain string, calls []docs.CompositeStep) ([]interface{}, error)
}

// SolanaClient is the capability surface a Solana inner executor needs.
type SolanaClient interface {
	Call(ctx context.Context, chain string, program, instruction string, accounts []interface{}) (interface{}, error)
	SendInstruction(ctx context.Context, chain string, program, instruction string, accounts []interface{}) (confirmation map[string]interface{}, err error)
}

// EvmExecutor is the innermost executor for evm_call/evm_read/
// evm_multiread/evm_multicall ExecutionSpecs.
type EvmExecutor struct {
	Client EvmClient
}

func (e *EvmExecutor) Supports(n *plan.Node) bool {
	if n.Execution == nil {
		return false
	}
	switch n.Execution.Kind {
	case docs.ExecEvmCall, docs.ExecEvmRead, docs.ExecEvmMultiread, docs.ExecEvmMulticall:
		return true
	default:
		return false
	}
}

func (e *EvmExecutor) Execute(ctx context.Context, n *plan.Node, ectx *ExecCtx) (Result, error) {
	spec := n.Execution
	args, err := resolveArgs(ectx, spec.Args)
	if err != nil {
		return Result{}, err
	}
	contract, err := resolveRef(ectx, spec.Contract)
	if err != nil {
		return Result{}, err
	}
	contractStr, _ := contract.(string)

	switch spec.Kind {
	case docs.ExecEvmRead:
		out, err := e.Client.Call(ctx, n.Chain, contractStr, spec.Method, args)
		if err != nil {
			return Result{}, &executorFailedError{NodeID: n.ID, RetryableVal: true, Err: err}
		}
		return Result{Outputs: map[string]interface{}{"result": out}}, nil

	case docs.ExecEvmMultiread:
		results := make([]interface{}, 0, len(spec.Steps))
		for _, step := range spec.Steps {
			stepContract, _ := resolveRef(ectx, step.Spec.Contract)
			stepArgs, err := resolveArgs(ectx, step.Spec.Args)
			if err != nil {
				return Result{}, err
			}
			sc, _ := stepContract.(string)
			out, err := e.Client.Call(ctx, n.Chain, sc, step.Spec.Method, stepArgs)
			if err != nil {
				return Result{}, &executorFailedError{NodeID: n.ID, RetryableVal: true, Err: err}
			}
			results = append(results, out)
		}
		return Result{Outputs: map[string]interface{}{"results": results}}, nil

	case docs.ExecEvmMulticall:
		outs, err := e.Client.MultiCall(ctx, n.Chain, spec.Steps)
		if err != nil {
			return Result{}, &executorFailedError{NodeID: n.ID, RetryableVal: true, Err: err}
		}
		return Result{Outputs: map[string]interface{}{"results": outs}}, nil

	default: // evm_call
		valueRef, err := resolveRef(ectx, spec.Value)
		if err != nil {
			return Result{}, err
		}
		receipt, err := e.Client.SendTransaction(ctx, n.Chain, contractStr, spec.Method, args, valueRef)
		if err != nil {
			return Result{}, &executorFailedError{NodeID: n.ID, RetryableVal: false, Err: err}
		}
		return Result{Outputs: map[string]interface{}{"receipt": receipt}}, nil
	}
}

// SolanaExecutor is the innermost executor for solana_instruction/
// solana_read ExecutionSpecs.
type SolanaExecutor struct {
	Client SolanaClient
}

func (s *SolanaExecutor) Supports(n *plan.Node) bool {
	if n.Execution == nil {
		return false
	}
	switch n.Execution.Kind {
	case docs.ExecSolanaInstruction, docs.ExecSolanaRead:
		return true
	default:
		return false
	}
}

func (s *SolanaExecutor) Execute(ctx context.Context, n *plan.Node, ectx *ExecCtx) (Result, error) {
	spec := n.Execution
	program, err := resolveRef(ectx, spec.Program)
	if err != nil {
		return Result{}, err
	}
	programStr, _ := program.(string)

	accounts := make([]interface{}, 0, len(spec.Accounts))
	for _, a := range spec.Accounts {
		v, err := resolveRef(ectx, a)
		if err != nil {
			return Result{}, err
		}
		accounts = append(accounts, v)
	}

	if spec.Kind == docs.ExecSolanaRead {
		out, err := s.Client.Call(ctx, n.Chain, programStr, spec.Instruction, accounts)
		if err != nil {
			return Result{}, &executorFailedError{NodeID: n.ID, RetryableVal: true, Err: err}
		}
		return Result{Outputs: map[string]interface{}{"result": out}}, nil
	}

	conf, err := s.Client.SendInstruction(ctx, n.Chain, programStr, spec.Instruction, accounts)
	if err != nil {
		return Result{}, &executorFailedError{NodeID: n.ID, RetryableVal: false, Err: err}
	}
	return Result{Outputs: map[string]interface{}{"confirmation": conf}}, nil
}

// PluginExecutor dispatches any non-core ExecutionSpec type to a
// handler registered under that type (Execution.Kind); the readiness analyzer and policy
// gate already validated refs and chain allow-listing before this runs.
type PluginExecutor struct {
	Handlers map[string]func(ctx context.Context, n *plan.Node, payload interface{}, ectx *ExecCtx) (Result, error)
}

func (p *PluginExecutor) Supports(n *plan.Node) bool {
	if n.Execution == nil {
		return false
	}
	_, ok := p.Handlers[string(n.Execution.Kind)]
	return ok
}

func (p *PluginExecutor) Execute(ctx context.Context, n *plan.Node, ectx *ExecCtx) (Result, error) {
	handler := p.Handlers[string(n.Execution.Kind)]
	payload, err := resolveRef(ectx, n.Execution.Payload)
	if err != nil {
		return Result{}, err
	}
	return handler(ctx, n, payload, ectx)
}

type executorFailedError struct {
	NodeID       string
	RetryableVal bool
	Err          error
}

func (e *executorFailedError) Error() string { return "executor failed: " + e.Err.Error() }
func (e *executorFailedError) Unwrap() error { return e.Err }
func (e *executorFailedError) Retryable() bool { return e.RetryableVal }

func resolveRef(ectx *ExecCtx, ref *value.Ref) (interface{}, error) {
	if ref == nil {
		return nil, nil
	}
	return value.Resolve(ectx.Root, ref, value.Options{RootOverrides: map[string]interface{}{"params": ectx.ResolvedParams}, Detect: ectx.Detect})
}

func resolveArgs(ectx *ExecCtx, args map[string]*value.Ref) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(args))
	for k, ref := range args {
		v, err := resolveRef(ectx, ref)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
