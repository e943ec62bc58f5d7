package engine

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/loadcore/internal/module"
	"git.home.luguber.info/inful/loadcore/internal/registry"
)

// callLog records lifecycle calls shared by all mocks of a test.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

// stage returns the aliases that received the given stage call, in order.
func (l *callLog) stage(name string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, c := range l.calls {
		if alias, stage, ok := cutLast(c); ok && stage == name {
			out = append(out, alias)
		}
	}
	return out
}

func cutLast(call string) (string, string, bool) {
	for i := len(call) - 1; i >= 0; i-- {
		if call[i] == ':' {
			return call[:i], call[i+1:], true
		}
	}
	return "", "", false
}

// MockModule is a test implementation of module.Module.
type MockModule struct {
	module.Base
	log      *callLog
	checks   []bool
	checkErr error
	failures map[string]error

	mu         sync.Mutex
	checkCount int
}

func NewMockModule(log *callLog) *MockModule {
	return &MockModule{log: log, failures: make(map[string]error)}
}

// WithChecks sets the results of successive Check calls. Once exhausted,
// Check reports not done.
func (m *MockModule) WithChecks(results ...bool) *MockModule {
	m.checks = results
	return m
}

func (m *MockModule) WithCheckError(err error) *MockModule {
	m.checkErr = err
	return m
}

func (m *MockModule) WithFailure(stage string, err error) *MockModule {
	m.failures[stage] = err
	return m
}

func (m *MockModule) CheckCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkCount
}

func (m *MockModule) record(stage string) error {
	m.log.add(m.Alias() + ":" + stage)
	return m.failures[stage]
}

func (m *MockModule) Prepare(context.Context) error  { return m.record(StagePrepare) }
func (m *MockModule) Startup(context.Context) error  { return m.record(StageStartup) }
func (m *MockModule) Shutdown(context.Context) error { return m.record(StageShutdown) }
func (m *MockModule) PostProcess(context.Context) error {
	return m.record(StagePostProcess)
}

func (m *MockModule) Check(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.checkCount
	m.checkCount++
	if m.checkErr != nil {
		return false, m.checkErr
	}
	if i < len(m.checks) {
		return m.checks[i], nil
	}
	return false, nil
}

// MockProvisioning is a MockModule with the provisioning capability.
type MockProvisioning struct {
	*MockModule
}

func (p *MockProvisioning) Executors() []module.Executor { return nil }

const lifecycleConfig = `
modules:
  agg: {implementation: agg}
  svc: {implementation: svc}
  prov: {implementation: prov}
  rep: {implementation: rep}
provisioning: prov
services: [svc]
reporting: [rep]
settings:
  check-interval: 5ms
  aggregator: agg
`

type fixture struct {
	t      *testing.T
	engine *Engine
	calls  *callLog
	dir    string
	logs   *bytes.Buffer
	mocks  map[string]*MockModule
}

// newFixture builds an engine over the mocks agg, svc, prov and rep and
// configures it from configYAML without base layers.
func newFixture(t *testing.T, configYAML string, tweak func(f *fixture), opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		calls: &callLog{},
		dir:   t.TempDir(),
		logs:  &bytes.Buffer{},
		mocks: make(map[string]*MockModule),
	}
	for _, name := range []string{"agg", "svc", "prov", "rep"} {
		f.mocks[name] = NewMockModule(f.calls)
	}
	if tweak != nil {
		tweak(f)
	}

	catalog := registry.NewCatalog()
	for name, mock := range f.mocks {
		if name == "prov" {
			catalog.MustRegister(name, func() module.Module { return &MockProvisioning{MockModule: mock} })
			continue
		}
		catalog.MustRegister(name, func() module.Module { return mock })
	}

	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := []Option{
		WithLogger(logger),
		WithCatalog(catalog),
		WithConfigDir(""),
		WithPersonalConfig(""),
		WithArtifactsDir(filepath.Join(f.dir, "artifacts")),
	}
	f.engine = New(append(base, opts...)...)

	path := filepath.Join(f.dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("---\n"+configYAML), 0o600))
	merged, err := f.engine.Configure(context.Background(), []string{path}, false)
	require.NoError(t, err)
	require.NoError(t, f.engine.CreateArtifactsDir(nil, merged))
	return f
}
