package value

import (
	"math/big"
	"testing"
)

func TestResolveLit(t *testing.T) {
	t.Parallel()
	root := NewRoot()
	v, err := Resolve(root, Lit("hello"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "hello" {
		t.Fatalf("expected hello, got %v", v)
	}
}

func TestResolveRefMissing(t *testing.T) {
	t.Parallel()
	root := NewRoot()
	_, err := Resolve(root, RefPath("inputs.amount"), Options{})
	if err == nil {
		t.Fatalf("expected missing_ref error")
	}
}

func TestResolveRefFromOverrides(t *testing.T) {
	t.Parallel()
	root := NewRoot()
	opts := Options{RootOverrides: map[string]interface{}{
		"params": map[string]interface{}{"x": 7},
	}}
	v, err := Resolve(root, RefPath("params.x"), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
}

func TestResolveCelArithmetic(t *testing.T) {
	t.Parallel()
	root := NewRoot()
	if err := root.ApplyUnguarded(Patch{Op: "set", Path: "inputs.amount", Value: 7}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	v, err := Resolve(root, Cel("inputs.amount + 3"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 10 {
		t.Fatalf("expected 10, got %v", v)
	}
}

func TestResolveCelBuiltinMulDiv(t *testing.T) {
	t.Parallel()
	root := NewRoot()
	v, err := Resolve(root, Cel("mul_div(100, 3, 2)"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := v.(*big.Int)
	if !ok {
		t.Fatalf("expected *big.Int, got %T", v)
	}
	if n.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected 150, got %v", n)
	}
}

func TestResolveObjectArray(t *testing.T) {
	t.Parallel()
	root := NewRoot()
	ref := Obj(map[string]*Ref{
		"a": Lit(1),
		"b": Arr([]*Ref{Lit(2), Lit(3)}),
	})
	v, err := Resolve(root, ref, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", v)
	}
	arr, ok := m["b"].([]interface{})
	if !ok || len(arr) != 2 {
		t.Fatalf("expected 2-element array, got %v", m["b"])
	}
}

func TestDetectChooseOne(t *testing.T) {
	t.Parallel()
	root := NewRoot()
	ref := DetectRef(&Detect{Kind: "choose_one", Candidates: []interface{}{"uniswap", "sushiswap"}})
	v, err := Resolve(root, ref, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "uniswap" {
		t.Fatalf("expected first candidate, got %v", v)
	}
}

func TestDetectUnsupportedSync(t *testing.T) {
	t.Parallel()
	root := NewRoot()
	ref := DetectRef(&Detect{Kind: "best_price"})
	_, err := Resolve(root, ref, Options{})
	if err == nil {
		t.Fatalf("expected detect_unsupported error")
	}
}

func TestPatchGuardRejectsRoot(t *testing.T) {
	t.Parallel()
	root := NewRoot()
	err := root.Apply(Patch{Op: "set", Path: "nodes.n1.outputs.x", Value: 1}, DefaultGuard())
	if err == nil {
		t.Fatalf("expected guard rejection")
	}
}

func TestPatchGuardAllowsContracts(t *testing.T) {
	t.Parallel()
	root := NewRoot()
	err := root.Apply(Patch{Op: "merge", Path: "contracts", Value: map[string]interface{}{"router": "0xabc"}}, DefaultGuard())
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	v, ok := root.Get("contracts.router")
	if !ok || v != "0xabc" {
		t.Fatalf("expected merged contract, got %v ok=%v", v, ok)
	}
}
