package command

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/module"
	lctesting "git.home.luguber.info/inful/loadcore/internal/testing"
)

func newExecutor(t *testing.T, doc string) (*Executor, *lctesting.FileAssertions) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	root := lctesting.NewConfigBuilder(t).
		WithYAML("provisioning: local\n").
		WithYAML(doc).
		Build()
	host := lctesting.NewHost(t, root)
	execution, err := root.GetMap(module.KeyExecution)
	require.NoError(t, err)

	e := host.Bind(New(), "exec").(*Executor)
	e.BindExecution(nil, execution)
	return e, lctesting.NewFileAssertions(t, host.Artifacts().Dir())
}

func runToCompletion(t *testing.T, e *Executor) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.Prepare(ctx))
	require.NoError(t, e.Startup(ctx))
	require.Eventually(t, func() bool {
		done, err := e.Check(ctx)
		return err == nil && done
	}, 10*time.Second, 10*time.Millisecond)
	require.NoError(t, e.Shutdown(ctx))
}

func TestExecutorCapturesOutput(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, files := newExecutor(t, `
execution:
  command: echo hello; echo oops >&2
`)
	runToCompletion(t, e)
	require.NoError(t, e.PostProcess(context.Background()))
	require.Equal(t, 0, e.ExitCode())

	files.AssertFileContains("exec.out", "hello")
	files.AssertFileContains("exec.err", "oops")
}

func TestExecutorEnvironment(t *testing.T) {
	e, files := newExecutor(t, `
execution:
  command: echo "$FOO:$LOADCORE_ARTIFACTS_DIR"
  env:
    FOO: bar
`)
	runToCompletion(t, e)
	require.NoError(t, e.PostProcess(context.Background()))

	dir := e.Host().Artifacts().Dir()
	files.AssertFileContains("exec.out", "bar:"+dir)
}

func TestExecutorNonZeroExit(t *testing.T) {
	e, _ := newExecutor(t, `
execution:
  command: [sh, -c, "exit 3"]
`)
	runToCompletion(t, e)

	err := e.PostProcess(context.Background())
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryModule), "got %v", err)
	require.Equal(t, 3, e.ExitCode())
}

func TestExecutorHoldForKillsProcess(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, _ := newExecutor(t, `
execution:
  command: [sleep, "30"]
  hold-for: 50ms
`)
	start := time.Now()
	runToCompletion(t, e)
	require.Less(t, time.Since(start), 10*time.Second)
	require.NoError(t, e.PostProcess(context.Background()), "killed by shutdown is not a failure")
}

func TestExecutorConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		category ferrors.ErrorCategory
	}{
		{"no command", "execution:\n  env: {}\n", ferrors.CategoryMissingConfig},
		{"empty list", "execution:\n  command: []\n", ferrors.CategoryMissingConfig},
		{"bad type", "execution:\n  command: {a: 1}\n", ferrors.CategoryTypeMismatch},
		{"bad hold", "execution:\n  command: true\n  hold-for: soon\n", ferrors.CategoryTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newExecutor(t, tt.doc)
			err := e.Prepare(context.Background())
			require.True(t, ferrors.HasCategory(err, tt.category), "got %v", err)
		})
	}
}

func TestExecutorScript(t *testing.T) {
	script := filepath.Join(t.TempDir(), "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho from-script\n"), 0o700))
	e, files := newExecutor(t, "execution:\n  files: [data.csv]\n")
	e.Execution().Set("script", script)

	listed, err := module.ResourceFiles(e)
	require.NoError(t, err)
	require.Equal(t, []string{"data.csv", script}, listed)

	runToCompletion(t, e)
	require.NoError(t, e.PostProcess(context.Background()))
	files.AssertFileContains("exec.out", "from-script")
}
