package config

import (
	"fmt"
	"math"
	"time"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
)

type required struct{ message string }

// Required is a Get default that turns an absent key into a MissingConfigError.
func Required(message string) any {
	return required{message: message}
}

// Get returns the value stored under key. When the key is absent, def is
// stored there and returned, so callers mutating a returned *Map or
// slice see their changes in the tree.
func (m *Map) Get(key string, def any) (any, error) {
	if value, ok := m.om.Get(key); ok {
		return value, nil
	}
	if r, ok := def.(required); ok {
		msg := r.message
		if msg == "" {
			msg = fmt.Sprintf("option %q is mandatory", key)
		}
		return nil, ferrors.MissingConfigError(msg).WithContext("key", key)
	}
	def = normalize(def)
	m.om.Set(key, def)
	return def, nil
}

// GetMap returns the mapping under key, materializing an empty one.
func (m *Map) GetMap(key string) (*Map, error) {
	value, err := m.Get(key, NewMap())
	if err != nil {
		return nil, err
	}
	sub, ok := value.(*Map)
	if !ok {
		return nil, ferrors.TypeMismatchError(key, "a mapping", value)
	}
	return sub, nil
}

// Sub walks nested mappings, materializing missing levels.
func (m *Map) Sub(keys ...string) (*Map, error) {
	current := m
	for _, key := range keys {
		next, err := current.GetMap(key)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// GetList returns the sequence under key, materializing an empty one.
func (m *Map) GetList(key string) ([]any, error) {
	value, err := m.Get(key, []any{})
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case []any:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, ferrors.TypeMismatchError(key, "a list", value)
	}
}

// GetString returns the string under key.
func (m *Map) GetString(key, def string) (string, error) {
	value, err := m.Get(key, def)
	if err != nil {
		return "", err
	}
	return AsString(key, value)
}

// RequireString returns the string under key or a MissingConfigError with message.
func (m *Map) RequireString(key, message string) (string, error) {
	value, err := m.Get(key, Required(message))
	if err != nil {
		return "", err
	}
	return AsString(key, value)
}

// GetBool returns the boolean under key.
func (m *Map) GetBool(key string, def bool) (bool, error) {
	value, err := m.Get(key, def)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, ferrors.TypeMismatchError(key, "a boolean", value)
	}
	return b, nil
}

// GetInt returns the integer under key. Floats with no fractional part are accepted.
func (m *Map) GetInt(key string, def int64) (int64, error) {
	value, err := m.Get(key, def)
	if err != nil {
		return 0, err
	}
	return AsInt(key, value)
}

// GetFloat returns the number under key.
func (m *Map) GetFloat(key string, def float64) (float64, error) {
	value, err := m.Get(key, def)
	if err != nil {
		return 0, err
	}
	return AsFloat(key, value)
}

// GetDuration returns the duration under key. Numbers are seconds, strings
// use ParseDuration. An absent key stores def in its string form.
func (m *Map) GetDuration(key string, def time.Duration) (time.Duration, error) {
	value, err := m.Get(key, def.String())
	if err != nil {
		return 0, err
	}
	d, err := ParseDuration(value)
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryTypeMismatch, fmt.Sprintf("option %q must be a duration", key)).
			Fatal().
			WithContext("key", key).
			Build()
	}
	return d, nil
}

// EnsureMap replaces a scalar under key with {defaultKey: scalar} and
// returns the mapping.
func (m *Map) EnsureMap(key, defaultKey string) (*Map, error) {
	value, ok := m.om.Get(key)
	if !ok {
		return m.GetMap(key)
	}
	converted, err := ensureMapValue(key, value, defaultKey)
	if err != nil {
		return nil, err
	}
	m.om.Set(key, converted)
	return converted, nil
}

// EnsureMapAt is EnsureMap for a sequence element.
func EnsureMapAt(list []any, index int, defaultKey string) (*Map, error) {
	converted, err := ensureMapValue(fmt.Sprintf("[%d]", index), list[index], defaultKey)
	if err != nil {
		return nil, err
	}
	list[index] = converted
	return converted, nil
}

func ensureMapValue(key string, value any, defaultKey string) (*Map, error) {
	switch v := value.(type) {
	case *Map:
		return v, nil
	case string, int64, float64, bool:
		return MapOf(defaultKey, v), nil
	default:
		return nil, ferrors.TypeMismatchError(key, "a mapping or a scalar", value)
	}
}

// AsString converts a tree value to string without coercion.
func AsString(key string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", ferrors.TypeMismatchError(key, "a string", value)
	}
	return s, nil
}

// AsInt converts a tree number to int64.
func AsInt(key string, value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), nil
		}
	}
	return 0, ferrors.TypeMismatchError(key, "an integer", value)
}

// AsFloat converts a tree number to float64.
func AsFloat(key string, value any) (float64, error) {
	switch v := value.(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	}
	return 0, ferrors.TypeMismatchError(key, "a number", value)
}
