// Package modules registers the built-in module implementations.
package modules

import (
	"git.home.luguber.info/inful/loadcore/internal/modules/collector"
	"git.home.luguber.info/inful/loadcore/internal/modules/command"
	"git.home.luguber.info/inful/loadcore/internal/modules/local"
	"git.home.luguber.info/inful/loadcore/internal/modules/natsreport"
	"git.home.luguber.info/inful/loadcore/internal/modules/promexport"
	"git.home.luguber.info/inful/loadcore/internal/modules/summary"
	"git.home.luguber.info/inful/loadcore/internal/registry"
)

// RegisterBuiltins adds every built-in implementation to catalog.
func RegisterBuiltins(catalog *registry.Catalog) {
	catalog.MustRegister(local.Implementation, local.New)
	catalog.MustRegister(command.Implementation, command.New)
	catalog.MustRegister(promexport.Implementation, promexport.New)
	catalog.MustRegister(collector.Implementation, collector.New)
	catalog.MustRegister(natsreport.Implementation, natsreport.New)
	catalog.MustRegister(summary.Implementation, summary.New)
}

// NewCatalog returns a catalog holding the built-in implementations.
func NewCatalog() *registry.Catalog {
	catalog := registry.NewCatalog()
	RegisterBuiltins(catalog)
	return catalog
}
