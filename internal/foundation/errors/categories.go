package errors

import "maps"

// ErrorCategory represents the taxonomy entry of an error.
type ErrorCategory string

const (
	// Configuration and setup errors. These abort configure/prepare immediately.
	CategoryFormatDetection       ErrorCategory = "format_detection"
	CategoryMissingConfig         ErrorCategory = "missing_config"
	CategoryTypeMismatch          ErrorCategory = "type_mismatch"
	CategoryUnknownAlias          ErrorCategory = "unknown_alias"
	CategoryMissingImplementation ErrorCategory = "missing_implementation"
	CategoryModuleLoad            ErrorCategory = "module_load"
	CategoryCapabilityMismatch    ErrorCategory = "capability_mismatch"
	CategoryConfig                ErrorCategory = "config"

	// Control signals. Recorded as stopping reason, not treated as failures.
	CategoryManualShutdown ErrorCategory = "manual_shutdown"
	CategoryNormalShutdown ErrorCategory = "normal_shutdown"
	CategoryInterrupted    ErrorCategory = "interrupted"

	// Runtime errors.
	CategoryModule     ErrorCategory = "module"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryNetwork    ErrorCategory = "network"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution completely
	SeverityError   ErrorSeverity = "error"   // Fails the current operation
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// ErrorContext provides structured context for errors.
type ErrorContext map[string]any

// Set adds or updates a context value.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	value, exists := c[key]
	return value, exists
}

// GetString retrieves a string context value.
func (c ErrorContext) GetString(key string) (string, bool) {
	if value, exists := c.Get(key); exists {
		if str, ok := value.(string); ok {
			return str, true
		}
	}
	return "", false
}

// Merge combines two contexts, with other taking precedence.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	result := make(ErrorContext)
	maps.Copy(result, c)
	maps.Copy(result, other)
	return result
}
