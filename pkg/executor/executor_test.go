package executor

import (
	"context"
	"testing"

	"github.com/owliabot/ais-sub001/pkg/docs"
	"github.com/owliabot/ais-sub001/pkg/plan"
	"github.com/owliabot/ais-sub001/pkg/value"
)

func TestEvmReadThroughChain(t *testing.T) {
	t.Parallel()
	inner := &EvmExecutor{Client: NewMockEvmClient()}
	chain := Chain(inner, ChainDeps{})

	n := &plan.Node{
		ID:    "q1",
		Chain: "eip155:1",
		Kind:  plan.KindQueryRef,
		Execution: &docs.ExecutionSpec{
			Kind:     docs.ExecEvmRead,
			Contract: value.Lit("0xrouter"),
			Method:   "getReserves",
		},
	}
	ectx := &ExecCtx{Root: value.NewRoot()}
	res, err := chain.Execute(context.Background(), n, ectx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confirm != nil {
		t.Fatalf("read should not need confirm, got %+v", res.Confirm)
	}
}

func TestEvmWriteBlockedWithoutBroadcast(t *testing.T) {
	t.Parallel()
	inner := &EvmExecutor{Client: NewMockEvmClient()}
	chain := Chain(inner, ChainDeps{})

	n := &plan.Node{
		ID:    "a1",
		Chain: "eip155:1",
		Kind:  plan.KindActionRef,
		Execution: &docs.ExecutionSpec{
			Kind:     docs.ExecEvmCall,
			Contract: value.Lit("0xrouter"),
			Method:   "swap",
		},
	}
	ectx := &ExecCtx{Root: value.NewRoot(), Broadcast: false}
	res, err := chain.Execute(context.Background(), n, ectx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confirm == nil {
		t.Fatalf("expected need_user_confirm without broadcast")
	}
}

func TestEvmWriteProceedsWithBroadcast(t *testing.T) {
	t.Parallel()
	client := NewMockEvmClient()
	inner := &EvmExecutor{Client: client}
	chain := Chain(inner, ChainDeps{})

	n := &plan.Node{
		ID:    "a1",
		Chain: "eip155:1",
		Kind:  plan.KindActionRef,
		Execution: &docs.ExecutionSpec{
			Kind:     docs.ExecEvmCall,
			Contract: value.Lit("0xrouter"),
			Method:   "swap",
		},
	}
	ectx := &ExecCtx{Root: value.NewRoot(), Broadcast: true}
	res, err := chain.Execute(context.Background(), n, ectx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confirm != nil {
		t.Fatalf("expected no confirm with broadcast on, got %+v", res.Confirm)
	}
	if res.Outputs["receipt"] == nil {
		t.Fatalf("expected receipt in outputs")
	}
}

func TestStrictSuccessRejectsFailedReceipt(t *testing.T) {
	t.Parallel()
	client := NewMockEvmClient()
	client.ReceiptStatus = "0x0"
	inner := &EvmExecutor{Client: client}
	chain := Chain(inner, ChainDeps{})

	n := &plan.Node{
		ID:    "a1",
		Chain: "eip155:1",
		Kind:  plan.KindActionRef,
		Execution: &docs.ExecutionSpec{
			Kind:     docs.ExecEvmCall,
			Contract: value.Lit("0xrouter"),
			Method:   "swap",
		},
	}
	ectx := &ExecCtx{Root: value.NewRoot(), Broadcast: true}
	_, err := chain.Execute(context.Background(), n, ectx)
	if err == nil {
		t.Fatalf("expected strict success failure")
	}
}
