package value

import "testing"

func TestApplyJQSelectsField(t *testing.T) {
	t.Parallel()
	out, err := ApplyJQ(".params.amount", map[string]interface{}{
		"params": map[string]interface{}{"amount": 42},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := out.(float64)
	if !ok || n != 42 {
		t.Fatalf("expected 42, got %v (%T)", out, out)
	}
}

func TestApplyJQReshapesArray(t *testing.T) {
	t.Parallel()
	out, err := ApplyJQ("[.calculated.legs[] | .notional]", map[string]interface{}{
		"calculated": map[string]interface{}{
			"legs": []interface{}{
				map[string]interface{}{"notional": 1},
				map[string]interface{}{"notional": 2},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arr, ok := out.([]interface{})
	if !ok || len(arr) != 2 {
		t.Fatalf("expected 2-element array, got %v", out)
	}
}

func TestApplyJQInvalidFilter(t *testing.T) {
	t.Parallel()
	_, err := ApplyJQ("!!!not jq!!!", map[string]interface{}{})
	if err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestApplyJQCompileErrorCached(t *testing.T) {
	t.Parallel()
	_, err1 := ApplyJQ("this is not valid jq (((", nil)
	_, err2 := ApplyJQ("this is not valid jq (((", nil)
	if err1 == nil || err2 == nil {
		t.Fatalf("expected both calls to error")
	}
}

func TestApplyJQFilterRuntimeError(t *testing.T) {
	t.Parallel()
	_, err := ApplyJQ(".foo | error(\"boom\")", map[string]interface{}{"foo": 1})
	if err == nil {
		t.Fatalf("expected runtime error from jq error() builtin")
	}
}
