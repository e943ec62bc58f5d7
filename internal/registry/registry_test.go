package registry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/loadcore/internal/config"
	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/module"
)

type mockModule struct {
	module.Base
}

type mockProvisioning struct {
	module.Base
}

func (m *mockProvisioning) Executors() []module.Executor { return nil }

func newTestRegistry(t *testing.T, modules *config.Map, logger *slog.Logger) (*Registry, *config.Configuration) {
	t.Helper()
	catalog := NewCatalog()
	require.NoError(t, catalog.Register("mock", func() module.Module { return &mockModule{} }))
	require.NoError(t, catalog.Register("prov", func() module.Module { return &mockProvisioning{} }))
	require.NoError(t, catalog.Register("nil", func() module.Module { return nil }))
	require.NoError(t, catalog.Register("panics", func() module.Module { panic("boom") }))

	cfg := config.New(slog.New(slog.DiscardHandler))
	cfg.Set(KeyModules, modules)
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return New(catalog, cfg, nil, logger), cfg
}

func TestCatalogRegister(t *testing.T) {
	c := NewCatalog()
	factory := func() module.Module { return &mockModule{} }

	require.NoError(t, c.Register("mock", factory))
	require.True(t, c.Has("mock"))
	require.Error(t, c.Register("mock", factory), "duplicate registration must fail")
	require.Error(t, c.Register("", factory))
	require.Error(t, c.Register("other", nil))
	require.Panics(t, func() { c.MustRegister("mock", factory) })

	require.NoError(t, c.Register("a-first", factory))
	require.Equal(t, []string{"a-first", "mock"}, c.Names())

	_, err := c.Lookup("missing")
	require.Error(t, err)
}

func TestResolve_UnknownAliasListsSortedAliases(t *testing.T) {
	r, _ := newTestRegistry(t, config.MapOf("zeta", "mock", "alpha", "mock", "mid", "mock"), nil)

	_, err := r.Instantiate("nope")
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryUnknownAlias))
	require.Contains(t, err.Error(), "possible aliases: [alpha, mid, zeta]")
}

func TestResolve_StringEntryNormalized(t *testing.T) {
	r, cfg := newTestRegistry(t, config.MapOf("m", "mock"), nil)

	impl, _, err := r.Resolve("m")
	require.NoError(t, err)
	require.Equal(t, "mock", impl)

	entry, ok := cfg.Lookup(KeyModules, "m")
	require.True(t, ok)
	require.Equal(t, map[string]any{"implementation": "mock"}, entry.(*config.Map).ToNative())
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name     string
		entry    any
		category ferrors.ErrorCategory
	}{
		{"missing implementation", config.MapOf("option", 1), ferrors.CategoryMissingImplementation},
		{"empty implementation", config.MapOf("implementation", ""), ferrors.CategoryMissingImplementation},
		{"unregistered implementation", "not.registered", ferrors.CategoryModuleLoad},
		{"factory returns nil", "nil", ferrors.CategoryCapabilityMismatch},
		{"factory panics", "panics", ferrors.CategoryModuleLoad},
		{"entry of wrong type", []any{"x"}, ferrors.CategoryTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRegistry(t, config.MapOf("m", tt.entry), nil)
			_, err := r.Instantiate("m")
			require.Error(t, err)
			require.True(t, ferrors.HasCategory(err, tt.category), "got %v", err)
		})
	}
}

func TestResolve_CachedPerAlias(t *testing.T) {
	r, cfg := newTestRegistry(t, config.MapOf("m", "mock"), nil)
	_, _, err := r.Resolve("m")
	require.NoError(t, err)

	// Later configuration changes do not affect a resolved alias.
	cfg.Set(KeyModules, config.NewMap())
	impl, _, err := r.Resolve("m")
	require.NoError(t, err)
	require.Equal(t, "mock", impl)
}

func TestInstantiate_FreshBoundInstances(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r, _ := newTestRegistry(t, config.MapOf("m", config.MapOf("implementation", "mock", "api-token", "abc", "rate", 5)), logger)

	first, err := r.Instantiate("m")
	require.NoError(t, err)
	second, err := r.Instantiate("m")
	require.NoError(t, err)
	require.NotSame(t, first, second)

	m := first.(*mockModule)
	require.Equal(t, "m", m.Alias())
	rate, err := m.Settings().GetInt("rate", 0)
	require.NoError(t, err)
	require.Equal(t, int64(5), rate)

	// Both instances share the live settings subtree.
	m.Settings().Set("added", true)
	require.True(t, second.(*mockModule).Settings().Has("added"))

	require.NoError(t, m.Prepare(context.Background()))
	require.Contains(t, buf.String(), "module=m")
	require.NotContains(t, buf.String(), "abc")
	require.Contains(t, buf.String(), config.MaskValue)
}

func TestInstantiateAs(t *testing.T) {
	r, _ := newTestRegistry(t, config.MapOf("p", "prov", "m", "mock"), nil)

	prov, err := InstantiateAs[module.Provisioning](r, "p", "provisioning")
	require.NoError(t, err)
	require.Equal(t, "p", prov.Alias())

	_, err = InstantiateAs[module.Provisioning](r, "m", "provisioning")
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryCapabilityMismatch))
}
