// Package module defines the contract between the engine and the work
// units it drives. A module is constructed by the registry, bound to its
// alias and settings, then taken through Prepare, Startup, repeated
// Check calls, Shutdown and PostProcess.
package module

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/loadcore/internal/artifacts"
	"git.home.luguber.info/inful/loadcore/internal/config"
)

// Module is a unit of work driven through the run lifecycle.
type Module interface {
	// Bind attaches the module to its alias, logger, host and settings.
	// It is called exactly once, before any lifecycle method.
	Bind(b Binding)

	// Alias returns the alias the module was instantiated under.
	Alias() string

	// SetParameters passes the list entry a service or reporter was
	// declared with.
	SetParameters(params *config.Map)

	Prepare(ctx context.Context) error
	Startup(ctx context.Context) error

	// Check reports whether the module considers the run finished.
	// It must not block.
	Check(ctx context.Context) (bool, error)

	Shutdown(ctx context.Context) error
	PostProcess(ctx context.Context) error
}

// Binding carries what a module receives at instantiation.
type Binding struct {
	Alias    string
	Log      *slog.Logger
	Host     Host
	Settings *config.Map
}

// Host is the engine as seen from a module.
type Host interface {
	Config() *config.Configuration
	Artifacts() *artifacts.Manager
	InstantiateModule(alias string) (Module, error)
	RunID() string
	HTTPClient() *http.Client
	MetricsRegistry() *prometheus.Registry
	FindFile(name string) (string, error)
	StoppingReason() error
	LoopUtilization() float64
	Modules() []Module
}

// FileLister is implemented by modules that depend on files beyond their
// configuration, such as scripts.
type FileLister interface {
	ResourceFiles() ([]string, error)
}

// Base implements Module with no-op lifecycle methods. Concrete modules
// embed it and override what they need.
type Base struct {
	alias      string
	log        *slog.Logger
	host       Host
	settings   *config.Map
	parameters *config.Map
}

var _ Module = (*Base)(nil)

func (b *Base) Bind(binding Binding) {
	b.alias = binding.Alias
	b.log = binding.Log
	b.host = binding.Host
	b.settings = binding.Settings
}

func (b *Base) Alias() string { return b.alias }

// Log returns the module's scoped logger.
func (b *Base) Log() *slog.Logger {
	if b.log == nil {
		return slog.Default()
	}
	return b.log
}

func (b *Base) Host() Host { return b.host }

// Settings returns the module's "modules.<alias>" subtree.
func (b *Base) Settings() *config.Map {
	if b.settings == nil {
		b.settings = config.NewMap()
	}
	return b.settings
}

func (b *Base) SetParameters(params *config.Map) { b.parameters = params }

// Parameters returns the list entry the module was declared with.
func (b *Base) Parameters() *config.Map {
	if b.parameters == nil {
		b.parameters = config.NewMap()
	}
	return b.parameters
}

// Option looks key up in the parameters first, then in the settings.
func (b *Base) Option(key string) (any, bool) {
	if value, ok := b.Parameters().Lookup(key); ok {
		return value, true
	}
	return b.Settings().Lookup(key)
}

// OptionString is Option for string values.
func (b *Base) OptionString(key, def string) (string, error) {
	value, ok := b.Option(key)
	if !ok || value == nil {
		return def, nil
	}
	return config.AsString(key, value)
}

func (b *Base) Prepare(context.Context) error       { return nil }
func (b *Base) Startup(context.Context) error       { return nil }
func (b *Base) Check(context.Context) (bool, error) { return false, nil }
func (b *Base) Shutdown(context.Context) error      { return nil }
func (b *Base) PostProcess(context.Context) error   { return nil }
