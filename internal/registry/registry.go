package registry

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/loadcore/internal/config"
	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/module"
)

const (
	// KeyModules is the configuration section declaring module aliases.
	KeyModules = "modules"
	// KeyImplementation names the implementation of an alias.
	KeyImplementation = "implementation"
)

// Registry resolves aliases for one run. Resolutions are cached: once an
// alias has been resolved the configuration and catalog are not consulted
// again for it.
//
// Registry is not safe for concurrent use.
type Registry struct {
	catalog  *Catalog
	cfg      *config.Configuration
	host     module.Host
	logger   *slog.Logger
	resolved map[string]resolution
}

type resolution struct {
	implementation string
	factory        Factory
}

// New creates a registry reading aliases from cfg and binding instances to host.
func New(catalog *Catalog, cfg *config.Configuration, host module.Host, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		catalog:  catalog,
		cfg:      cfg,
		host:     host,
		logger:   logger,
		resolved: make(map[string]resolution),
	}
}

// Resolve returns the implementation name and factory for alias.
func (r *Registry) Resolve(alias string) (string, Factory, error) {
	if res, ok := r.resolved[alias]; ok {
		return res.implementation, res.factory, nil
	}

	modules, err := r.cfg.Root().GetMap(KeyModules)
	if err != nil {
		return "", nil, err
	}
	if !modules.Has(alias) {
		return "", nil, ferrors.UnknownAliasError(alias, modules.SortedKeys())
	}
	entry, err := modules.EnsureMap(alias, KeyImplementation)
	if err != nil {
		return "", nil, err
	}

	value, ok := entry.Lookup(KeyImplementation)
	if !ok || !config.Truthy(value) {
		return "", nil, ferrors.MissingImplementationError(alias)
	}
	implementation, err := config.AsString(KeyModules+"."+alias+"."+KeyImplementation, value)
	if err != nil {
		return "", nil, err
	}

	factory, err := r.catalog.Lookup(implementation)
	if err != nil {
		return "", nil, ferrors.ModuleLoadError(alias, implementation, err)
	}

	r.resolved[alias] = resolution{implementation: implementation, factory: factory}
	return implementation, factory, nil
}

// Instantiate returns a fresh instance of alias bound to the host, a
// logger scoped with the alias and the "modules.<alias>" settings subtree.
func (r *Registry) Instantiate(alias string) (module.Module, error) {
	implementation, factory, err := r.Resolve(alias)
	if err != nil {
		return nil, err
	}

	instance, err := construct(alias, implementation, factory)
	if err != nil {
		return nil, err
	}

	settings, err := r.cfg.Root().Sub(KeyModules, alias)
	if err != nil {
		return nil, err
	}
	log := r.logger.With(logfields.Module(alias))
	instance.Bind(module.Binding{
		Alias:    alias,
		Log:      log,
		Host:     r.host,
		Settings: settings,
	})
	log.Debug("Module config", slog.Any("settings", config.Masked(settings).ToNative()))
	return instance, nil
}

func construct(alias, implementation string, factory Factory) (instance module.Module, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = ferrors.ModuleLoadError(alias, implementation, fmt.Errorf("factory panicked: %v", rec))
		}
	}()
	instance = factory()
	if instance == nil {
		return nil, ferrors.CapabilityMismatchError(alias, "module")
	}
	return instance, nil
}

// InstantiateAs instantiates alias and requires capability T.
func InstantiateAs[T module.Module](r *Registry, alias, capability string) (T, error) {
	var zero T
	instance, err := r.Instantiate(alias)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, ferrors.CapabilityMismatchError(alias, capability)
	}
	return typed, nil
}
