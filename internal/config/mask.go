package config

import (
	"strings"

	"golang.org/x/text/cases"
)

// MaskValue replaces sensitive values in dumps and logs.
const MaskValue = "********"

var sensitiveSuffixes = []string{"password", "secret", "token"}

// IsSensitiveKey reports whether key, case-folded, ends in password, secret or token.
func IsSensitiveKey(key string) bool {
	folded := cases.Fold().String(key)
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(folded, suffix) {
			return true
		}
	}
	return false
}

// MaskSensitive masks, in place, every truthy value stored under a
// sensitive key anywhere in value.
func MaskSensitive(value any) {
	switch v := value.(type) {
	case *Map:
		for _, key := range v.Keys() {
			item, _ := v.om.Get(key)
			if IsSensitiveKey(key) && Truthy(item) {
				v.om.Set(key, MaskValue)
				continue
			}
			MaskSensitive(item)
		}
	case []any:
		for _, item := range v {
			MaskSensitive(item)
		}
	}
}

// Masked returns a masked deep copy of m.
func Masked(m *Map) *Map {
	masked := m.Clone()
	MaskSensitive(masked)
	return masked
}
