package aisjson

import (
	"math/big"
	"testing"
)

func TestRoundTripBigInt(t *testing.T) {
	t.Parallel()
	in := map[string]interface{}{"amount": big.NewInt(123456789)}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out interface{}
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, ok := out.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", out)
	}
	n, ok := m["amount"].(*big.Int)
	if !ok || n.Cmp(big.NewInt(123456789)) != 0 {
		t.Fatalf("expected round-tripped bigint, got %v", m["amount"])
	}
}

func TestRoundTripBytes(t *testing.T) {
	t.Parallel()
	in := map[string]interface{}{"raw": []byte{1, 2, 3}}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out interface{}
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m := out.(map[string]interface{})
	b, ok := m["raw"].([]byte)
	if !ok || len(b) != 3 || b[0] != 1 {
		t.Fatalf("expected round-tripped bytes, got %v", m["raw"])
	}
}
