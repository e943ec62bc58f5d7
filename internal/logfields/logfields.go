package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyComponent   = "component"
	KeyRunID       = "run_id"
	KeyStage       = "stage"
	KeyModule      = "module"
	KeyAlias       = "alias"
	KeyArtifact    = "artifact"
	KeyPath        = "path"
	KeyDurationMS  = "duration_ms"
	KeyUtilization = "utilization"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Component(c string) slog.Attr    { return slog.String(KeyComponent, c) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Module(name string) slog.Attr    { return slog.String(KeyModule, name) }
func Alias(a string) slog.Attr        { return slog.String(KeyAlias, a) }
func Artifact(p string) slog.Attr     { return slog.String(KeyArtifact, p) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Utilization(u float64) slog.Attr { return slog.Float64(KeyUtilization, u) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
