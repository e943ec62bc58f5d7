package engine

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/loadcore/internal/config"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/module"
	"git.home.luguber.info/inful/loadcore/internal/registry"
)

const (
	keyCheckInterval = "check-interval"
	keyAggregator    = "aggregator"
	keyModule        = "module"
)

// Prepare instantiates the aggregator, services, provisioning and reporters
// in that order, preparing each right after construction. The first failure
// aborts the stage. Modules constructed before it stay eligible for
// post-process.
func (e *Engine) Prepare(ctx context.Context) error {
	if err := e.requireStage("Prepare", stageConfigured); err != nil {
		return err
	}
	e.stage = stagePrepared
	start := e.now()
	e.logger.Info("Preparing...")

	err := e.prepare(ctx)
	e.observe(StagePrepare, start, err)
	if err != nil {
		e.prepareFailed = true
		e.recordStop(err)
	}
	e.dump()
	return err
}

func (e *Engine) prepare(ctx context.Context) error {
	settings, err := e.cfg.Settings()
	if err != nil {
		return err
	}
	if e.checkInterval, err = settings.GetDuration(keyCheckInterval, e.checkInterval); err != nil {
		return err
	}

	if err := e.prepareAggregator(ctx, settings); err != nil {
		return err
	}
	if e.services, err = e.prepareList(ctx, groupServices); err != nil {
		return err
	}
	if err := e.prepareProvisioning(ctx); err != nil {
		return err
	}
	e.reporters, err = e.prepareList(ctx, groupReporting)
	return err
}

func (e *Engine) prepareAggregator(ctx context.Context, settings *config.Map) error {
	alias, err := settings.GetString(keyAggregator, "")
	if err != nil {
		return err
	}
	if alias == "" {
		e.logger.Warn("Proceeding without aggregator, no results analysis")
		noop := &module.Base{}
		noop.Bind(module.Binding{
			Alias:    groupAggregator,
			Log:      e.logger.With(logfields.Module(groupAggregator)),
			Host:     e,
			Settings: config.NewMap(),
		})
		e.aggregator = &slot{group: groupAggregator, mod: noop}
		return e.prepareSlot(ctx, e.aggregator)
	}

	mod, err := e.registry.Instantiate(alias)
	if err != nil {
		return err
	}
	e.aggregator = &slot{group: groupAggregator, mod: mod}
	return e.prepareSlot(ctx, e.aggregator)
}

func (e *Engine) prepareProvisioning(ctx context.Context) error {
	alias, err := e.cfg.Root().RequireString(groupProvisioning, "Please configure provisioning settings")
	if err != nil {
		return err
	}
	prov, err := registry.InstantiateAs[module.Provisioning](e.registry, alias, "provisioning")
	if err != nil {
		return err
	}
	e.provisioning = &slot{group: groupProvisioning, mod: prov}
	return e.prepareSlot(ctx, e.provisioning)
}

// prepareList prepares every entry of a services or reporting list. String
// entries are normalized to {module: alias} in place.
func (e *Engine) prepareList(ctx context.Context, group string) ([]*slot, error) {
	entries, err := e.cfg.Root().GetList(group)
	if err != nil {
		return nil, err
	}
	slots := make([]*slot, 0, len(entries))
	for i := range entries {
		entry, err := config.EnsureMapAt(entries, i, keyModule)
		if err != nil {
			return slots, err
		}
		alias, err := entry.RequireString(keyModule, fmt.Sprintf("%s entry %d has no module alias", group, i))
		if err != nil {
			return slots, err
		}
		mod, err := e.registry.Instantiate(alias)
		if err != nil {
			return slots, err
		}
		mod.SetParameters(entry)

		s := &slot{group: group, mod: mod}
		slots = append(slots, s)
		if err := e.prepareSlot(ctx, s); err != nil {
			return slots, err
		}
	}
	return slots, nil
}

func (e *Engine) prepareSlot(ctx context.Context, s *slot) error {
	s.prepared = true
	e.prepared = append(e.prepared, s)
	e.logger.Debug("Preparing module", logfields.Module(s.alias()), slog.String("group", s.group))
	if err := s.mod.Prepare(ctx); err != nil {
		e.moduleFailed(s, StagePrepare, err)
		return err
	}
	return nil
}
