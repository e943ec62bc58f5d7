package engine

import (
	"context"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
)

// PostProcess gives every prepared module the chance to process results,
// including after a failed Prepare or Run. All modules are attempted. A
// user interrupt raised by any module takes precedence over other errors.
func (e *Engine) PostProcess(ctx context.Context) error {
	if err := e.requireStage("PostProcess", stagePrepared, stageShutDown); err != nil {
		return err
	}
	if e.stage == stagePrepared && !e.prepareFailed {
		return ferrors.InternalError("PostProcess called before Run").Build()
	}
	e.stage = stagePostProcessed
	start := e.now()
	e.logger.Info("Post-processing...")

	ctx = context.WithoutCancel(ctx)
	errs := newStageErrors(StagePostProcess)
	for _, s := range e.teardownOrder() {
		if !s.prepared {
			continue
		}
		e.logger.Debug("Post-process", logfields.Module(s.alias()))
		if err := s.mod.PostProcess(ctx); err != nil {
			e.moduleFailed(s, StagePostProcess, err)
			errs.add(s.alias(), err)
		}
	}
	errs.logSummary(e.logger)
	e.dump()

	var err error
	if interrupt := errs.FirstMatching(ferrors.IsInterrupt); interrupt != nil {
		e.recordStop(interrupt)
		err = interrupt
	} else {
		err = e.stageResult(errs)
	}
	e.observe(StagePostProcess, start, err)
	return err
}
