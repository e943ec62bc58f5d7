package testing

import (
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/loadcore/internal/artifacts"
	"git.home.luguber.info/inful/loadcore/internal/config"
	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/module"
)

// Host is a module.Host backed by a config tree, a temporary artifacts
// directory and a table of factories keyed by alias.
type Host struct {
	t         *testing.T
	cfg       *config.Configuration
	artifacts *artifacts.Manager
	registry  *prometheus.Registry
	runID     string
	logger    *slog.Logger

	mu          sync.Mutex
	factories   map[string]func() module.Module
	modules     []module.Module
	reason      error
	utilization float64
}

var _ module.Host = (*Host)(nil)

// NewHost creates a host whose configuration is root and whose artifacts
// directory is a fresh temporary directory.
func NewHost(t *testing.T, root *config.Map) *Host {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	cfg := config.New(logger)
	if root != nil {
		cfg.Merge(root)
	}
	am := artifacts.NewManager(logger)
	am.SetDir(t.TempDir())
	return &Host{
		t:         t,
		cfg:       cfg,
		artifacts: am,
		registry:  prometheus.NewRegistry(),
		runID:     uuid.NewString(),
		logger:    logger,
		factories: make(map[string]func() module.Module),
	}
}

// Register makes alias instantiable through InstantiateModule.
func (h *Host) Register(alias string, factory func() module.Module) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.factories[alias] = factory
	return h
}

// Bind binds m to alias with its settings taken from modules.<alias>.
func (h *Host) Bind(m module.Module, alias string) module.Module {
	h.t.Helper()
	settings, err := h.cfg.Sub("modules", alias)
	if err != nil {
		h.t.Fatalf("module settings for %s: %v", alias, err)
	}
	m.Bind(module.Binding{Alias: alias, Log: h.logger.With("module", alias), Host: h, Settings: settings})
	return m
}

// SetModules sets what Modules returns.
func (h *Host) SetModules(mods ...module.Module) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modules = mods
}

// SetStoppingReason sets what StoppingReason returns.
func (h *Host) SetStoppingReason(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reason = err
}

// SetLoopUtilization sets what LoopUtilization returns.
func (h *Host) SetLoopUtilization(u float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.utilization = u
}

func (h *Host) Config() *config.Configuration { return h.cfg }

func (h *Host) Artifacts() *artifacts.Manager { return h.artifacts }

func (h *Host) InstantiateModule(alias string) (module.Module, error) {
	h.mu.Lock()
	factory, ok := h.factories[alias]
	h.mu.Unlock()
	if !ok {
		return nil, ferrors.UnknownAliasError(alias, nil)
	}
	return h.Bind(factory(), alias), nil
}

func (h *Host) RunID() string { return h.runID }

func (h *Host) HTTPClient() *http.Client { return http.DefaultClient }

func (h *Host) MetricsRegistry() *prometheus.Registry { return h.registry }

// FindFile returns name unchanged.
func (h *Host) FindFile(name string) (string, error) { return name, nil }

func (h *Host) StoppingReason() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

func (h *Host) LoopUtilization() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.utilization
}

func (h *Host) Modules() []module.Module {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.modules
}
