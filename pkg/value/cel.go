package value

import (
	"container/list"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// celCache is a thread-safe LRU cache of compiled expr-lang programs,
// keyed by the raw expression text. Grounded on the teacher's
// ConditionCache (pkg/engine/condition_cache.go), generalized from
// boolean conditions to general-value cel expressions.
type celCache struct {
	capacity int
	mu       sync.RWMutex
	items    map[string]*list.Element
	lru      *list.List
}

type celCacheEntry struct {
	key     string
	program *vm.Program
}

func newCelCache(capacity int) *celCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &celCache{capacity: capacity, items: make(map[string]*list.Element), lru: list.New()}
}

func (c *celCache) get(exprText string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[exprText]; ok {
		c.lru.MoveToFront(el)
		return el.Value.(*celCacheEntry).program, true
	}
	return nil, false
}

func (c *celCache) put(exprText string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[exprText]; ok {
		c.lru.MoveToFront(el)
		el.Value.(*celCacheEntry).program = program
		return
	}
	el := c.lru.PushFront(&celCacheEntry{key: exprText, program: program})
	c.items[exprText] = el
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*celCacheEntry).key)
		}
	}
}

var defaultCelCache = newCelCache(256)

// compileAndRunCel compiles (or fetches from cache) expr text and runs it
// against env. Numeric literals and arithmetic use expr-lang's native
// int/float64 machinery; the integer-first discipline is enforced two
// ways: token-amount math is expected to flow through the AIS builtin
// functions below (to_atomic, to_human, mul_div, abs, min, max), which
// operate on arbitrary-precision math/big.Int, and a bare non-integral
// float64 result reaching the KindCel case in resolve (eval.go) is
// rejected there as a cel_eval_failed error.
func compileAndRunCel(exprText string, env map[string]interface{}) (interface{}, error) {
	program, ok := defaultCelCache.get(exprText)
	if !ok {
		compiled, err := expr.Compile(exprText, expr.Env(env), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, err
		}
		program = compiled
		defaultCelCache.put(exprText, program)
	}
	return expr.Run(program, env)
}

// builtinFuncs returns the AIS-specific + string/math/collection/type
// builtin function set merged into every cel evaluation env.
func builtinFuncs() map[string]interface{} {
	return map[string]interface{}{
		"size":       celSize,
		"contains":   func(s, sub string) bool { return strings.Contains(s, sub) },
		"startsWith": func(s, prefix string) bool { return strings.HasPrefix(s, prefix) },
		"endsWith":   func(s, suffix string) bool { return strings.HasSuffix(s, suffix) },
		"matches":    celMatches,
		"lower":      strings.ToLower,
		"upper":      strings.ToUpper,
		"trim":       strings.TrimSpace,
		"abs":        celAbs,
		"min":        celMin,
		"max":        celMax,
		"ceil":       celCeil,
		"floor":      celFloor,
		"round":      celRound,
		"mul_div":    celMulDiv,
		"int":        celToInt,
		"uint":       celToUint,
		"double":     celToDouble,
		"string":     celToString,
		"bool":       celToBool,
		"type":       celType,
		"to_atomic":  celToAtomic,
		"to_human":   celToHuman,
	}
}

var regexCache sync.Map // pattern string -> *regexp.Regexp

func celMatches(s, pattern string) bool {
	if cached, ok := regexCache.Load(pattern); ok {
		re := cached.(*regexp.Regexp)
		return re.MatchString(s)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	regexCache.Store(pattern, re)
	return re.MatchString(s)
}

func asBigInt(v interface{}) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		return n, true
	case int:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case float64:
		if n == float64(int64(n)) {
			return big.NewInt(int64(n)), true
		}
	}
	return nil, false
}

func celAbs(v interface{}) interface{} {
	if n, ok := asBigInt(v); ok {
		return new(big.Int).Abs(n)
	}
	if f, ok := v.(float64); ok {
		if f < 0 {
			return -f
		}
		return f
	}
	return v
}

func celMin(a, b interface{}) interface{} {
	if an, aok := asBigInt(a); aok {
		if bn, bok := asBigInt(b); bok {
			if an.Cmp(bn) <= 0 {
				return an
			}
			return bn
		}
	}
	if celToDouble(a) <= celToDouble(b) {
		return a
	}
	return b
}

func celMax(a, b interface{}) interface{} {
	if an, aok := asBigInt(a); aok {
		if bn, bok := asBigInt(b); bok {
			if an.Cmp(bn) >= 0 {
				return an
			}
			return bn
		}
	}
	if celToDouble(a) >= celToDouble(b) {
		return a
	}
	return b
}

func celCeil(v float64) int64 {
	i := int64(v)
	if v > float64(i) {
		i++
	}
	return i
}

func celFloor(v float64) int64 {
	i := int64(v)
	if v < float64(i) {
		i--
	}
	return i
}

func celRound(v float64) int64 {
	if v >= 0 {
		return int64(v + 0.5)
	}
	return int64(v - 0.5)
}

// celMulDiv computes a*b/c exactly on big integers, truncated toward
// zero (floor for non-negative operands), the common
// "multiply then divide" primitive needed for token amount math without
// intermediate float rounding.
func celMulDiv(a, b, c interface{}) *big.Int {
	an, _ := asBigInt(a)
	bn, _ := asBigInt(b)
	cn, _ := asBigInt(c)
	if an == nil || bn == nil || cn == nil || cn.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(an, bn)
	return num.Quo(num, cn)
}

func celSize(v interface{}) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []interface{}:
		return len(t)
	case map[string]interface{}:
		return len(t)
	default:
		return 0
	}
}

func celToInt(v interface{}) interface{} {
	if n, ok := asBigInt(v); ok {
		return n
	}
	if s, ok := v.(string); ok {
		n := new(big.Int)
		if _, ok := n.SetString(s, 10); ok {
			return n
		}
	}
	return big.NewInt(0)
}

func celToUint(v interface{}) interface{} {
	n, _ := celToInt(v).(*big.Int)
	if n == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Abs(n)
}

func celToDouble(v interface{}) float64 {
	switch t := v.(type) {
	case *big.Int:
		f := new(big.Float).SetInt(t)
		out, _ := f.Float64()
		return out
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func celToString(v interface{}) string {
	switch t := v.(type) {
	case *big.Int:
		return t.String()
	case string:
		return t
	default:
		return fmt.Sprintf("%v", v)
	}
}

func celToBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case *big.Int:
		return t.Sign() != 0
	case string:
		return t != "" && t != "false"
	default:
		return v != nil
	}
}

func celType(v interface{}) string {
	switch v.(type) {
	case *big.Int:
		return "int"
	case float64:
		return "double"
	case string:
		return "string"
	case bool:
		return "bool"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

// celToAtomic scales a human-readable decimal amount up by 10^decimals
// into an atomic integer amount (e.g. ETH -> wei).
func celToAtomic(amount interface{}, decimals interface{}) *big.Int {
	a, _ := asBigInt(amount)
	if a == nil {
		a = big.NewInt(0)
	}
	d, _ := asBigInt(decimals)
	if d == nil {
		d = big.NewInt(0)
	}
	scale := new(big.Int).Exp(big.NewInt(10), d, nil)
	return new(big.Int).Mul(a, scale)
}

// celToHuman scales an atomic integer amount down by 10^decimals,
// truncating toward zero (floor for non-negative amounts).
func celToHuman(amount interface{}, decimals interface{}) *big.Int {
	a, _ := asBigInt(amount)
	if a == nil {
		a = big.NewInt(0)
	}
	d, _ := asBigInt(decimals)
	if d == nil {
		d = big.NewInt(0)
	}
	scale := new(big.Int).Exp(big.NewInt(10), d, nil)
	return new(big.Int).Quo(a, scale)
}
