// Package errors provides the classified error primitives used across loadcore.
//
// Every failure the engine reasons about carries an ErrorCategory. The
// lifecycle relies on categories to tell configuration problems (fail-fast)
// from control signals such as a manual or normal shutdown, and the CLI
// adapter maps categories to exit codes.
//
// Key features:
//   - ErrorCategory: taxonomy entry (format_detection, unknown_alias, manual_shutdown, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - ClassifiedError: structured error with category, severity, cause and context
//   - ErrorBuilder: fluent API for creating classified errors
//   - CLIErrorAdapter: exit codes and user-facing formatting
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryUnknownAlias, "module alias not found").
//		WithContext("alias", alias).
//		Build()
package errors
