// Package engine drives a run: it loads the layered configuration,
// instantiates the declared modules and takes them through prepare,
// startup, polling, shutdown and post-process.
package engine

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/loadcore/internal/artifacts"
	"git.home.luguber.info/inful/loadcore/internal/config"
	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/metrics"
	"git.home.luguber.info/inful/loadcore/internal/module"
	"git.home.luguber.info/inful/loadcore/internal/registry"
	"git.home.luguber.info/inful/loadcore/internal/transport"
)

//go:embed base.yml
var baseConfig []byte

// Lifecycle stage names, used in logs and metrics.
const (
	StageConfigure   = "configure"
	StagePrepare     = "prepare"
	StageStartup     = "startup"
	StagePoll        = "poll"
	StageShutdown    = "shutdown"
	StagePostProcess = "post-process"
)

// Module groups.
const (
	groupAggregator   = "aggregator"
	groupServices     = "services"
	groupProvisioning = "provisioning"
	groupReporting    = "reporting"
)

type stage int

const (
	stageNew stage = iota
	stageConfigured
	stagePrepared
	stageRunning
	stageShutDown
	stagePostProcessed
)

func (s stage) String() string {
	switch s {
	case stageNew:
		return "new"
	case stageConfigured:
		return "configured"
	case stagePrepared:
		return "prepared"
	case stageRunning:
		return "running"
	case stageShutDown:
		return "shut down"
	case stagePostProcessed:
		return "post-processed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// UpdateChecker runs the update check for Configure.
type UpdateChecker func(ctx context.Context, client *http.Client, endpoint, current, installID string) (transport.UpdateResult, error)

// Engine is the lifecycle orchestrator of one run. All lifecycle methods
// must be called from a single goroutine, in order; only Interrupt may be
// called concurrently.
type Engine struct {
	logger     *slog.Logger
	cfg        *config.Configuration
	catalog    *registry.Catalog
	registry   *registry.Registry
	artifacts  *artifacts.Manager
	recorder   metrics.Recorder
	promReg    *prometheus.Registry
	httpClient *http.Client
	checkFn    UpdateChecker
	now        func() time.Time
	runID      string

	configDir      string
	personalConfig string
	artifactsDir   string
	overrides      []config.Override
	searchPaths    []string

	stage          stage
	prepareFailed  bool
	checkInterval  time.Duration
	utilization    atomic.Uint64
	interrupted    atomic.Bool
	wake           chan struct{}
	stoppingReason error

	aggregator   *slot
	services     []*slot
	provisioning *slot
	reporters    []*slot
	prepared     []*slot
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the parent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithCatalog sets the implementation catalog modules are resolved from.
func WithCatalog(catalog *registry.Catalog) Option {
	return func(e *Engine) { e.catalog = catalog }
}

// WithMetrics sets the Prometheus registry exposed to modules and the
// recorder the engine reports to.
func WithMetrics(reg *prometheus.Registry, recorder metrics.Recorder) Option {
	return func(e *Engine) {
		e.promReg = reg
		e.recorder = recorder
	}
}

// WithConfigDir sets the machine-local config directory.
func WithConfigDir(dir string) Option {
	return func(e *Engine) { e.configDir = dir }
}

// WithPersonalConfig sets the personal config file path.
func WithPersonalConfig(path string) Option {
	return func(e *Engine) { e.personalConfig = path }
}

// WithArtifactsDir sets an explicit artifacts directory, bypassing the
// settings.artifacts-dir pattern.
func WithArtifactsDir(dir string) Option {
	return func(e *Engine) { e.artifactsDir = dir }
}

// WithOverrides sets command-line overrides applied after all config files.
func WithOverrides(overrides ...config.Override) Option {
	return func(e *Engine) { e.overrides = append(e.overrides, overrides...) }
}

// WithUpdateChecker replaces the update check; nil disables it.
func WithUpdateChecker(fn UpdateChecker) Option {
	return func(e *Engine) { e.checkFn = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. Without WithMetrics a fresh Prometheus registry
// and recorder are used.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:         slog.Default(),
		catalog:        registry.NewCatalog(),
		checkFn:        transport.CheckUpdates,
		now:            time.Now,
		runID:          uuid.NewString(),
		configDir:      DefaultConfigDir(),
		personalConfig: DefaultPersonalConfig,
		checkInterval:  time.Second,
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.promReg == nil {
		e.promReg = prometheus.NewRegistry()
	}
	if e.recorder == nil {
		e.recorder = metrics.NewPrometheusRecorder(e.promReg)
	}

	e.logger = e.logger.With(logfields.Component("engine"), logfields.RunID(e.runID))
	e.cfg = config.New(e.logger.With(logfields.Component("config")))
	e.artifacts = artifacts.NewManager(e.logger)
	e.registry = registry.New(e.catalog, e.cfg, e, e.logger)
	return e
}

var _ module.Host = (*Engine)(nil)

// Config returns the run configuration.
func (e *Engine) Config() *config.Configuration { return e.cfg }

// Artifacts returns the artifact manager.
func (e *Engine) Artifacts() *artifacts.Manager { return e.artifacts }

// InstantiateModule creates a fresh, bound instance of alias.
func (e *Engine) InstantiateModule(alias string) (module.Module, error) {
	return e.registry.Instantiate(alias)
}

// RunID identifies this run in logs and events.
func (e *Engine) RunID() string { return e.runID }

// HTTPClient returns the outbound client configured from settings.proxy.
func (e *Engine) HTTPClient() *http.Client {
	if e.httpClient == nil {
		return http.DefaultClient
	}
	return e.httpClient
}

// MetricsRegistry returns the run's Prometheus registry.
func (e *Engine) MetricsRegistry() *prometheus.Registry { return e.promReg }

// StoppingReason returns the first error recorded in the run, or nil.
func (e *Engine) StoppingReason() error { return e.stoppingReason }

// LoopUtilization returns elapsed/interval of the last polling iteration.
func (e *Engine) LoopUtilization() float64 {
	return math.Float64frombits(e.utilization.Load())
}

// CheckInterval returns the polling interval read during Prepare.
func (e *Engine) CheckInterval() time.Duration { return e.checkInterval }

// Modules returns the prepared modules in preparation order.
func (e *Engine) Modules() []module.Module {
	out := make([]module.Module, 0, len(e.prepared))
	for _, s := range e.prepared {
		out = append(out, s.mod)
	}
	return out
}

// Interrupt asks a running polling loop to stop with a manual shutdown.
// It is safe to call from any goroutine, including signal handlers.
func (e *Engine) Interrupt() {
	e.interrupted.Store(true)
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) recordStop(err error) {
	if err != nil && e.stoppingReason == nil {
		e.stoppingReason = err
	}
}

func (e *Engine) requireStage(name string, allowed ...stage) error {
	for _, s := range allowed {
		if e.stage == s {
			return nil
		}
	}
	return ferrors.InternalError(fmt.Sprintf("%s called out of order: engine is %s", name, e.stage)).
		WithContext("stage", name).
		Build()
}

// dump writes the effective configuration to the dump file, if one is set.
func (e *Engine) dump() {
	if err := e.cfg.Dump("", ""); err != nil {
		e.logger.Warn("Failed to dump config", logfields.Error(err))
	}
}

// observe records duration and result of a stage.
func (e *Engine) observe(name string, start time.Time, err error) {
	e.recorder.ObserveStageDuration(name, e.now().Sub(start))
	switch {
	case err == nil, ferrors.IsNormalShutdown(err):
		e.recorder.IncStageResult(name, metrics.ResultSuccess)
	case ferrors.IsManualShutdown(err), ferrors.IsInterrupt(err):
		e.recorder.IncStageResult(name, metrics.ResultCanceled)
	default:
		e.recorder.IncStageResult(name, metrics.ResultFailed)
	}
}

func (e *Engine) moduleFailed(s *slot, stageName string, err error) {
	e.recorder.IncModuleError(s.alias(), stageName)
	e.logger.Error("Module failed",
		logfields.Stage(stageName),
		logfields.Module(s.alias()),
		slog.String("group", s.group),
		logfields.Error(err))
}

// startupOrder: services, aggregator, reporters, provisioning.
func (e *Engine) startupOrder() []*slot {
	out := make([]*slot, 0, len(e.services)+len(e.reporters)+2)
	out = append(out, e.services...)
	out = appendSlot(out, e.aggregator)
	out = append(out, e.reporters...)
	return appendSlot(out, e.provisioning)
}

// checkOrder: provisioning, aggregator, services, reporters.
func (e *Engine) checkOrder() []*slot {
	out := make([]*slot, 0, len(e.services)+len(e.reporters)+2)
	out = appendSlot(out, e.provisioning)
	out = appendSlot(out, e.aggregator)
	out = append(out, e.services...)
	return append(out, e.reporters...)
}

// teardownOrder is used by shutdown and post-process: provisioning,
// aggregator, reporters, services.
func (e *Engine) teardownOrder() []*slot {
	out := make([]*slot, 0, len(e.services)+len(e.reporters)+2)
	out = appendSlot(out, e.provisioning)
	out = appendSlot(out, e.aggregator)
	out = append(out, e.reporters...)
	return append(out, e.services...)
}

func appendSlot(list []*slot, s *slot) []*slot {
	if s == nil {
		return list
	}
	return append(list, s)
}
