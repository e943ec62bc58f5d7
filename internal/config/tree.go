package config

import (
	"fmt"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Map is an insertion-ordered configuration mapping. Values are one of
// nil, bool, int64, float64, string, []any or *Map.
//
// A *Map is shared by reference: modules hold subtrees of the engine
// configuration and defaults they write become part of later dumps.
type Map struct {
	om *orderedmap.OrderedMap[string, any]
}

// NewMap returns an empty mapping.
func NewMap() *Map {
	return &Map{om: orderedmap.New[string, any]()}
}

// MapOf builds a mapping from alternating key/value arguments.
func MapOf(kv ...any) *Map {
	if len(kv)%2 != 0 {
		panic("config.MapOf: odd number of arguments")
	}
	m := NewMap()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("config.MapOf: key %v is not a string", kv[i]))
		}
		m.Set(key, kv[i+1])
	}
	return m
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return m.om.Len()
}

// Keys returns keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, m.om.Len())
	for pair := m.om.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// SortedKeys returns keys in lexical order.
func (m *Map) SortedKeys() []string {
	keys := m.Keys()
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.om.Get(key)
	return ok
}

// Lookup returns the value for key without materializing anything.
func (m *Map) Lookup(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	return m.om.Get(key)
}

// Set stores value under key. Go-native maps, slices and numbers are
// normalized into tree values. Existing keys keep their position.
func (m *Map) Set(key string, value any) {
	m.om.Set(key, normalize(value))
}

// Delete removes key and returns its former value.
func (m *Map) Delete(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	return m.om.Delete(key)
}

// Each calls fn for every entry in insertion order.
func (m *Map) Each(fn func(key string, value any)) {
	if m == nil {
		return
	}
	for pair := m.om.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	out := NewMap()
	m.Each(func(key string, value any) {
		out.om.Set(key, deepCopy(value))
	})
	return out
}

// ToNative converts the mapping to plain Go maps and slices.
func (m *Map) ToNative() map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, m.Len())
	m.Each(func(key string, value any) {
		out[key] = toNative(value)
	})
	return out
}

func toNative(value any) any {
	switch v := value.(type) {
	case *Map:
		return v.ToNative()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = toNative(item)
		}
		return out
	default:
		return v
	}
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case *Map:
		return v.Clone()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}

// normalize converts Go-native values into tree values.
func normalize(value any) any {
	switch v := value.(type) {
	case nil, bool, int64, float64, string, *Map:
		return v
	case []any:
		for i, item := range v {
			v[i] = normalize(item)
		}
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float32:
		return float64(v)
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	case map[string]string:
		m := NewMap()
		for _, key := range sortedKeys(v) {
			m.om.Set(key, v[key])
		}
		return m
	case map[string]any:
		m := NewMap()
		for _, key := range sortedKeys(v) {
			m.om.Set(key, normalize(v[key]))
		}
		return m
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Truthy reports whether a tree value counts as set: non-nil, non-false,
// non-zero and non-empty.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case *Map:
		return v.Len() > 0
	default:
		return true
	}
}
