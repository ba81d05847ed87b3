package value

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
)

// jqCache memoizes parsed+compiled gojq queries, mirroring the cel
// cache in cel.go: calculated_fields are re-evaluated on every node that
// references them, but the query text rarely changes across runs. The
// engine runs nodes concurrently, so lookups and inserts are mutex-guarded
// like celCache.
var jqCache = newJQCache()

type jqCacheEntry struct {
	code *gojq.Code
	err  error
}

type jqCacheStore struct {
	mu    sync.RWMutex
	items map[string]jqCacheEntry
}

func newJQCache() *jqCacheStore {
	return &jqCacheStore{items: make(map[string]jqCacheEntry)}
}

func (c *jqCacheStore) compile(filter string) (*gojq.Code, error) {
	c.mu.RLock()
	e, ok := c.items[filter]
	c.mu.RUnlock()
	if ok {
		return e.code, e.err
	}

	q, err := gojq.Parse(filter)
	if err != nil {
		err = fmt.Errorf("jq parse: %w", err)
		c.mu.Lock()
		c.items[filter] = jqCacheEntry{err: err}
		c.mu.Unlock()
		return nil, err
	}
	code, err := gojq.Compile(q)
	if err != nil {
		err = fmt.Errorf("jq compile: %w", err)
		c.mu.Lock()
		c.items[filter] = jqCacheEntry{err: err}
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Lock()
	c.items[filter] = jqCacheEntry{code: code}
	c.mu.Unlock()
	return code, nil
}

// ApplyJQ runs a jq filter against input, normalizing *big.Int and
// other AIS runtime values to json-compatible shapes first (gojq walks
// plain map[string]interface{}/[]interface{}/json.Number, not big.Int).
// Used by calculated_fields entries that need structural reshaping
// beyond cel's expression grammar (selecting into arrays, reducing
// object sets) rather than arithmetic.
func ApplyJQ(filter string, input interface{}) (interface{}, error) {
	code, err := jqCache.compile(filter)
	if err != nil {
		return nil, err
	}
	normalized, err := jsonNormalize(input)
	if err != nil {
		return nil, fmt.Errorf("jq input normalize: %w", err)
	}
	iter := code.Run(normalized)
	out, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("jq filter %q produced no output", filter)
	}
	if errVal, ok := out.(error); ok {
		return nil, fmt.Errorf("jq filter %q: %w", filter, errVal)
	}
	return out, nil
}

// jsonNormalize round-trips v through encoding/json so big.Int and
// other non-plain Go values become the float64/string/map/slice shapes
// gojq expects.
func jsonNormalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
