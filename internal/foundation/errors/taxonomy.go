package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
)

// FormatDetectionError reports a configuration source whose format is neither YAML nor JSON.
func FormatDetectionError(source string) *ClassifiedError {
	return NewError(CategoryFormatDetection, fmt.Sprintf("cannot detect file format for %s: expected a '---' YAML header or a leading '{' for JSON", source)).
		Fatal().
		WithContext("source", source).
		Build()
}

// MissingConfigError reports a mandatory configuration value that is absent.
func MissingConfigError(message string) *ClassifiedError {
	return NewError(CategoryMissingConfig, message).Fatal().Build()
}

// TypeMismatchError reports a configuration value of an unexpected kind.
func TypeMismatchError(key, want string, got any) *ClassifiedError {
	return NewError(CategoryTypeMismatch, fmt.Sprintf("option %q must be %s, got %T", key, want, got)).
		Fatal().
		WithContext("key", key).
		Build()
}

// UnknownAliasError reports an alias absent from the modules section. known is listed as given.
func UnknownAliasError(alias string, known []string) *ClassifiedError {
	return NewError(CategoryUnknownAlias,
		fmt.Sprintf("module alias '%s' not found in module settings, possible aliases: [%s]", alias, strings.Join(known, ", "))).
		Fatal().
		WithContext("alias", alias).
		WithContext("known", known).
		Build()
}

// MissingImplementationError reports a module entry without implementation reference.
func MissingImplementationError(alias string) *ClassifiedError {
	return NewError(CategoryMissingImplementation, fmt.Sprintf("implementation not found in module settings: %s", alias)).
		Fatal().
		WithContext("alias", alias).
		Build()
}

// ModuleLoadError reports an implementation reference that could not be resolved.
func ModuleLoadError(alias, implementation string, cause error) *ClassifiedError {
	return WrapError(cause, CategoryModuleLoad,
		fmt.Sprintf("cannot load module '%s' with implementation %s", alias, implementation)).
		Fatal().
		WithContext("alias", alias).
		WithContext("implementation", implementation).
		Build()
}

// CapabilityMismatchError reports a module lacking a required capability.
func CapabilityMismatchError(alias, capability string) *ClassifiedError {
	return NewError(CategoryCapabilityMismatch,
		fmt.Sprintf("module '%s' does not implement %s", alias, capability)).
		Fatal().
		WithContext("alias", alias).
		WithContext("capability", capability).
		Build()
}

// ManualShutdown is the stopping reason for an externally requested stop.
func ManualShutdown(message string) *ClassifiedError {
	if message == "" {
		message = "manual shutdown requested"
	}
	return NewError(CategoryManualShutdown, message).Info().Build()
}

// NormalShutdown lets a module end the run early without it counting as a failure.
func NormalShutdown(message string) *ClassifiedError {
	if message == "" {
		message = "normal shutdown"
	}
	return NewError(CategoryNormalShutdown, message).Info().Build()
}

// Interrupted reports a user interrupt (e.g. a second SIGINT) raised inside a module.
func Interrupted(message string) *ClassifiedError {
	if message == "" {
		message = "interrupted by user"
	}
	return NewError(CategoryInterrupted, message).Warning().Build()
}

// ModuleError wraps an error raised by a module stage method.
func ModuleError(alias, stage string, cause error) *ClassifiedError {
	return WrapError(cause, CategoryModule, fmt.Sprintf("module %s failed during %s", alias, stage)).
		WithContext("alias", alias).
		WithContext("stage", stage).
		Build()
}

// IsManualShutdown reports whether err is a manual shutdown signal.
func IsManualShutdown(err error) bool {
	return HasCategory(err, CategoryManualShutdown)
}

// IsNormalShutdown reports whether err is a normal shutdown signal.
func IsNormalShutdown(err error) bool {
	return HasCategory(err, CategoryNormalShutdown)
}

// IsInterrupt reports whether err is a user interrupt, including context cancellation.
func IsInterrupt(err error) bool {
	return HasCategory(err, CategoryInterrupted) || stderrors.Is(err, context.Canceled)
}
