package engine

import (
	"context"
	"math"
	"time"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/metrics"
)

// Run starts all modules, polls them until one reports done, then shuts
// down every started module. Shutdown runs even when startup or polling
// failed. A NormalShutdown raised by a module ends the run without error.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.requireStage("Run", stagePrepared); err != nil {
		return err
	}
	if e.prepareFailed {
		return ferrors.InternalError("Run called after a failed Prepare").Build()
	}
	e.stage = stageRunning
	start := e.now()

	runErr := e.startup(ctx)
	if runErr == nil {
		runErr = e.wait(ctx)
	}
	if runErr != nil {
		e.recordStop(runErr)
		if ferrors.IsNormalShutdown(runErr) {
			e.logger.Info("Normal shutdown requested", logfields.Error(runErr))
		}
	}

	shutdownErr := e.shutdown(context.WithoutCancel(ctx))
	e.stage = stageShutDown

	var err error
	switch {
	case shutdownErr != nil:
		err = shutdownErr
	case runErr != nil && !ferrors.IsNormalShutdown(runErr):
		err = runErr
	}

	e.recorder.ObserveRunDuration(e.now().Sub(start))
	switch {
	case err == nil:
		e.recorder.IncRunOutcome(metrics.OutcomeSuccess)
	case ferrors.IsManualShutdown(err), ferrors.IsInterrupt(err):
		e.recorder.IncRunOutcome(metrics.OutcomeManual)
	default:
		e.recorder.IncRunOutcome(metrics.OutcomeFailed)
	}
	return err
}

func (e *Engine) startup(ctx context.Context) error {
	start := e.now()
	e.logger.Info("Starting...")
	for _, s := range e.startupOrder() {
		s.started = true
		e.logger.Debug("Startup", logfields.Module(s.alias()))
		if err := s.mod.Startup(ctx); err != nil {
			e.moduleFailed(s, StageStartup, err)
			e.observe(StageStartup, start, err)
			return err
		}
	}
	e.observe(StageStartup, start, nil)
	return nil
}

// wait is the polling loop. Each iteration checks every started module;
// the loop ends once any of them reports done.
func (e *Engine) wait(ctx context.Context) error {
	start := e.now()
	e.logger.Info("Waiting for finish...")

	for {
		if e.interrupted.Load() || ctx.Err() != nil {
			err := ferrors.ManualShutdown("")
			e.observe(StagePoll, start, err)
			return err
		}

		iteration := e.now()
		done, err := e.poll(ctx)
		if err != nil {
			e.observe(StagePoll, start, err)
			return err
		}
		e.recorder.IncPollIterations()
		if done {
			break
		}

		elapsed := e.now().Sub(iteration)
		e.setUtilization(elapsed)
		if remaining := e.checkInterval - elapsed; remaining > 0 {
			e.sleep(ctx, remaining)
		}
	}

	e.observe(StagePoll, start, nil)
	e.dump()
	return nil
}

// poll calls Check on every started module. A failing Check ends the
// iteration immediately.
func (e *Engine) poll(ctx context.Context) (bool, error) {
	finished := false
	for _, s := range e.checkOrder() {
		if !s.started {
			continue
		}
		done, err := s.mod.Check(ctx)
		if err != nil {
			if !ferrors.IsNormalShutdown(err) {
				e.moduleFailed(s, StagePoll, err)
			}
			return false, err
		}
		if done {
			e.logger.Debug("Module is done", logfields.Module(s.alias()))
		}
		finished = finished || done
	}
	return finished, nil
}

func (e *Engine) setUtilization(elapsed time.Duration) {
	var u float64
	if e.checkInterval > 0 {
		u = float64(elapsed) / float64(e.checkInterval)
	}
	e.utilization.Store(math.Float64bits(u))
	e.recorder.SetLoopUtilization(u)
	if u > 1 {
		e.logger.Debug("Polling iteration exceeded check interval", logfields.Utilization(u))
	}
}

// sleep waits for d, returning early on Interrupt or cancellation.
func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-e.wake:
	case <-ctx.Done():
	}
}

// shutdown stops every started module, all of them even when some fail.
// The first failure becomes the stopping reason if none was recorded.
func (e *Engine) shutdown(ctx context.Context) error {
	start := e.now()
	e.logger.Info("Shutting down...")
	errs := newStageErrors(StageShutdown)
	for _, s := range e.teardownOrder() {
		if !s.started {
			continue
		}
		e.logger.Debug("Shutdown", logfields.Module(s.alias()))
		if err := s.mod.Shutdown(ctx); err != nil {
			e.moduleFailed(s, StageShutdown, err)
			errs.add(s.alias(), err)
		}
	}
	errs.logSummary(e.logger)
	e.dump()

	err := e.stageResult(errs)
	e.observe(StageShutdown, start, err)
	return err
}

// stageResult turns the errors of a best-effort stage into its return
// value: the stopping reason, or the stage's first error when the run was
// otherwise ending normally.
func (e *Engine) stageResult(errs *stageErrors) error {
	if errs.Len() == 0 {
		return nil
	}
	first := errs.First()
	e.recordStop(first)
	if reason := e.stoppingReason; reason != nil && !ferrors.IsNormalShutdown(reason) {
		return reason
	}
	return first
}
