package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/module"
	lctesting "git.home.luguber.info/inful/loadcore/internal/testing"
)

type fakeExecutor struct {
	module.ExecutorBase
	doneAfter   int
	checks      int
	started     bool
	shutdownErr error
	postErr     error
	resources   []string
	calls       *[]string
}

func (f *fakeExecutor) ResourceFiles() ([]string, error) {
	return f.resources, nil
}

func (f *fakeExecutor) Startup(context.Context) error {
	f.started = true
	*f.calls = append(*f.calls, f.Alias()+":startup")
	return nil
}

func (f *fakeExecutor) Check(context.Context) (bool, error) {
	f.checks++
	return f.checks >= f.doneAfter, nil
}

func (f *fakeExecutor) Shutdown(context.Context) error {
	*f.calls = append(*f.calls, f.Alias()+":shutdown")
	return f.shutdownErr
}

func (f *fakeExecutor) PostProcess(context.Context) error {
	*f.calls = append(*f.calls, f.Alias()+":post-process")
	return f.postErr
}

type harness struct {
	prov      *Provisioning
	executors map[string]*fakeExecutor
	resources map[string][]string
	calls     []string
	clock     time.Time
}

func newHarness(t *testing.T, doc string) *harness {
	t.Helper()
	h := &harness{executors: map[string]*fakeExecutor{}, resources: map[string][]string{}, clock: time.Unix(1000, 0)}
	root := lctesting.NewConfigBuilder(t).
		WithYAML("provisioning: local\n").
		WithYAML(doc).
		Build()
	host := lctesting.NewHost(t, root)
	for _, alias := range []string{"fast", "slow"} {
		doneAfter := 1
		if alias == "slow" {
			doneAfter = 3
		}
		host.Register(alias, func() module.Module {
			ex := &fakeExecutor{doneAfter: doneAfter, resources: h.resources[alias], calls: &h.calls}
			h.executors[alias] = ex
			return ex
		})
	}
	h.prov = host.Bind(New(), "local").(*Provisioning)
	h.prov.now = func() time.Time { return h.clock }
	return h
}

func TestProvisioningFansOut(t *testing.T) {
	h := newHarness(t, `
execution:
  - executor: fast
  - executor: slow
`)
	ctx := context.Background()
	require.NoError(t, h.prov.Prepare(ctx))
	require.Len(t, h.prov.Executors(), 2)
	require.NoError(t, h.prov.Startup(ctx))
	require.Equal(t, []string{"fast:startup", "slow:startup"}, h.calls)

	for i := 0; i < 2; i++ {
		done, err := h.prov.Check(ctx)
		require.NoError(t, err)
		require.False(t, done)
	}
	done, err := h.prov.Check(ctx)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, 1, h.executors["fast"].checks, "done executors are not checked again")

	require.NoError(t, h.prov.Shutdown(ctx))
	require.NoError(t, h.prov.PostProcess(ctx))
}

func TestProvisioningDelayedStart(t *testing.T) {
	h := newHarness(t, `
execution:
  - executor: fast
  - executor: fast
    delay: 10s
`)
	ctx := context.Background()
	require.NoError(t, h.prov.Prepare(ctx))
	require.NoError(t, h.prov.Startup(ctx))
	require.Equal(t, []string{"fast:startup"}, h.calls)

	done, err := h.prov.Check(ctx)
	require.NoError(t, err)
	require.False(t, done, "delayed executor has not started")

	h.clock = h.clock.Add(10 * time.Second)
	done, err = h.prov.Check(ctx)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, []string{"fast:startup", "fast:startup"}, h.calls)
}

func TestProvisioningShutdownSkipsUnstarted(t *testing.T) {
	h := newHarness(t, `
execution:
  - executor: fast
  - executor: slow
    delay: 1h
`)
	ctx := context.Background()
	require.NoError(t, h.prov.Prepare(ctx))
	require.NoError(t, h.prov.Startup(ctx))
	require.NoError(t, h.prov.Shutdown(ctx))
	require.Equal(t, []string{"fast:startup", "fast:shutdown"}, h.calls)
}

func TestProvisioningBestEffortTeardown(t *testing.T) {
	h := newHarness(t, `
execution:
  - executor: fast
  - executor: slow
`)
	ctx := context.Background()
	require.NoError(t, h.prov.Prepare(ctx))
	errFast := errors.New("fast failed")
	h.executors["fast"].shutdownErr = errFast
	h.executors["slow"].shutdownErr = errors.New("slow failed")
	h.executors["fast"].postErr = errFast
	require.NoError(t, h.prov.Startup(ctx))

	require.ErrorIs(t, h.prov.Shutdown(ctx), errFast)
	require.ErrorIs(t, h.prov.PostProcess(ctx), errFast)
	require.Contains(t, h.calls, "slow:shutdown")
	require.Contains(t, h.calls, "slow:post-process")
}

func TestProvisioningWithoutExecution(t *testing.T) {
	h := newHarness(t, "settings: {}\n")
	err := h.prov.Prepare(context.Background())
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryMissingConfig), "got %v", err)
}

func TestProvisioningCollectsResourceFiles(t *testing.T) {
	src := t.TempDir()
	data := filepath.Join(src, "data.csv")
	script := filepath.Join(src, "run.sh")
	require.NoError(t, os.WriteFile(data, []byte("a,b\n"), 0o600))
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o600))

	h := newHarness(t, `
execution:
  - executor: fast
    files: [`+data+`]
  - executor: slow
    files: [`+data+`]
`)
	h.resources["slow"] = []string{script}
	require.NoError(t, h.prov.Prepare(context.Background()))

	dir := h.prov.Host().Artifacts().Dir()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{"data.csv", "run.sh"}, names)

	copied, err := os.ReadFile(filepath.Join(dir, "data.csv"))
	require.NoError(t, err)
	require.Equal(t, "a,b\n", string(copied))
}
