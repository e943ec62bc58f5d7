// Package registry resolves module aliases from the run configuration to
// implementations registered in a Catalog and instantiates them.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"git.home.luguber.info/inful/loadcore/internal/module"
)

// Factory creates a fresh, unbound module instance.
type Factory func() module.Module

// Catalog maps implementation names to factories. It is populated once at
// process start and read by every run.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory under implementation.
// Returns an error if the name is empty, the factory is nil or the name is taken.
func (c *Catalog) Register(implementation string, factory Factory) error {
	if implementation == "" {
		return fmt.Errorf("implementation name is required")
	}
	if factory == nil {
		return fmt.Errorf("cannot register nil factory for %s", implementation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[implementation]; exists {
		return fmt.Errorf("implementation %s already registered", implementation)
	}
	c.factories[implementation] = factory
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (c *Catalog) MustRegister(implementation string, factory Factory) {
	if err := c.Register(implementation, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under implementation.
func (c *Catalog) Lookup(implementation string) (Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	factory, ok := c.factories[implementation]
	if !ok {
		return nil, fmt.Errorf("implementation %s not found", implementation)
	}
	return factory, nil
}

// Has reports whether implementation is registered.
func (c *Catalog) Has(implementation string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.factories[implementation]
	return ok
}

// Names returns registered implementation names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
