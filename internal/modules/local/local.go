// Package local provides provisioning on the local machine: every
// execution entry runs as an executor inside this process.
package local

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/module"
)

// Implementation is the catalog name of the local provisioning.
const Implementation = "local"

const keyDelay = "delay"

// Provisioning runs executors in-process. Executors with an execution
// "delay" are started by Check once the delay has passed.
type Provisioning struct {
	module.ProvisioningBase

	now     func() time.Time
	startAt time.Time
	slots   []*executorSlot
}

type executorSlot struct {
	executor module.Executor
	delay    time.Duration
	started  bool
	done     bool
}

var _ module.Provisioning = (*Provisioning)(nil)

// New creates the provisioning module.
func New() module.Module {
	return &Provisioning{now: time.Now}
}

// Prepare instantiates and prepares all executors.
func (p *Provisioning) Prepare(ctx context.Context) error {
	if err := p.PrepareExecutors(ctx, p); err != nil {
		return err
	}
	for _, executor := range p.Executors() {
		delay, err := executor.Execution().GetDuration(keyDelay, 0)
		if err != nil {
			return err
		}
		p.slots = append(p.slots, &executorSlot{executor: executor, delay: delay})
		if err := executor.Prepare(ctx); err != nil {
			return err
		}
	}
	return p.collectResources()
}

// collectResources copies every file the executors depend on into the
// artifacts directory, once per resolved path.
func (p *Provisioning) collectResources() error {
	seen := make(map[string]struct{})
	for _, executor := range p.Executors() {
		files, err := module.ResourceFiles(executor)
		if err != nil {
			return err
		}
		for _, name := range files {
			path, err := p.Host().FindFile(name)
			if err != nil {
				return err
			}
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			dst, err := p.Host().Artifacts().ExistingArtifact(path, false)
			if err != nil {
				return err
			}
			p.Log().Debug("Collected resource file",
				logfields.Module(executor.Alias()),
				logfields.Path(path),
				logfields.Artifact(dst))
		}
	}
	return nil
}

// Startup starts the executors without delay.
func (p *Provisioning) Startup(ctx context.Context) error {
	p.startAt = p.now()
	return p.startDue(ctx)
}

func (p *Provisioning) startDue(ctx context.Context) error {
	elapsed := p.now().Sub(p.startAt)
	for _, s := range p.slots {
		if s.started || elapsed < s.delay {
			continue
		}
		s.started = true
		p.Log().Info("Starting executor",
			logfields.Module(s.executor.Alias()),
			slog.Duration("delay", s.delay))
		if err := s.executor.Startup(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Check is done when every executor has started and reported done.
func (p *Provisioning) Check(ctx context.Context) (bool, error) {
	if err := p.startDue(ctx); err != nil {
		return false, err
	}
	finished := true
	for _, s := range p.slots {
		if !s.started {
			finished = false
			continue
		}
		if !s.done {
			done, err := s.executor.Check(ctx)
			if err != nil {
				return false, err
			}
			s.done = done
		}
		finished = finished && s.done
	}
	return finished, nil
}

// Shutdown stops every started executor. All are attempted; the first
// failure is returned.
func (p *Provisioning) Shutdown(ctx context.Context) error {
	var first error
	for _, s := range p.slots {
		if !s.started {
			continue
		}
		if err := s.executor.Shutdown(ctx); err != nil {
			p.Log().Error("Executor shutdown failed", logfields.Module(s.executor.Alias()), logfields.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// PostProcess post-processes every prepared executor. All are attempted;
// the first failure is returned.
func (p *Provisioning) PostProcess(ctx context.Context) error {
	var first error
	for _, s := range p.slots {
		if err := s.executor.PostProcess(ctx); err != nil {
			p.Log().Error("Executor post-process failed", logfields.Module(s.executor.Alias()), logfields.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
