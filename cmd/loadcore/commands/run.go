package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/loadcore/internal/engine"
	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
)

// RunCmd implements the 'run' command, the default when only configs are given.
type RunCmd struct {
	Configs   []string `arg:"" optional:"" help:"Config files (YAML or JSON), merged in order"`
	Artifacts string   `short:"a" name:"artifacts-dir" type:"path" help:"Use this artifacts directory instead of settings.artifacts-dir"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	var extra []engine.Option
	if r.Artifacts != "" {
		extra = append(extra, engine.WithArtifactsDir(r.Artifacts))
	}
	eng, err := root.NewEngine(g, extra...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		eng.Interrupt()
	}()

	err = Launch(ctx, eng, r.Configs, !root.NoSystemConfigs)
	if dir := eng.Artifacts().Dir(); dir != "" {
		_, _ = fmt.Fprintf(g.stdout(), "Artifacts dir: %s\n", dir)
	}
	return err
}

// Launch drives one run through configure, create artifacts dir, prepare,
// run and post-process. Post-process is attempted whenever prepare was.
// An interrupt raised during post-process wins over earlier errors;
// otherwise the first failure is returned. A normal shutdown is success.
func Launch(ctx context.Context, eng *engine.Engine, configs []string, readBase bool) error {
	logger := slog.Default()

	merged, err := eng.Configure(ctx, configs, readBase)
	if err != nil {
		return err
	}
	if err := eng.CreateArtifactsDir(configs, merged); err != nil {
		return err
	}
	logger.Info("Artifacts dir created", logfields.Path(eng.Artifacts().Dir()), logfields.RunID(eng.RunID()))

	runErr := eng.Prepare(ctx)
	if runErr == nil {
		runErr = eng.Run(ctx)
	}
	ppErr := eng.PostProcess(ctx)

	switch {
	case ferrors.IsInterrupt(ppErr):
		return ppErr
	case runErr != nil && !ferrors.IsNormalShutdown(runErr):
		return runErr
	case ferrors.IsNormalShutdown(ppErr):
		return nil
	default:
		return ppErr
	}
}
