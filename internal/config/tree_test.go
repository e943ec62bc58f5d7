package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
)

func TestMerge_NestedMappingsCombine(t *testing.T) {
	dst := MapOf("a", MapOf("x", 1))
	dst.Merge(MapOf("a", MapOf("y", 2)))

	a, err := dst.GetMap("a")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, a.Keys())
	require.Equal(t, map[string]any{"x": int64(1), "y": int64(2)}, a.ToNative())
}

func TestMerge_ScalarReplaced(t *testing.T) {
	dst := MapOf("a", 1)
	dst.Merge(MapOf("a", 2))
	require.Equal(t, map[string]any{"a": int64(2)}, dst.ToNative())
}

func TestMerge_ListReplaced(t *testing.T) {
	dst := MapOf("l", []any{1, 2, 3})
	dst.Merge(MapOf("l", []any{4}))
	require.Equal(t, []any{int64(4)}, dst.ToNative()["l"])
}

func TestMerge_SourceNotAliased(t *testing.T) {
	src := MapOf("a", MapOf("x", 1))
	dst := NewMap()
	dst.Merge(src)

	a, err := dst.GetMap("a")
	require.NoError(t, err)
	a.Set("x", 99)

	srcA, err := src.GetMap("a")
	require.NoError(t, err)
	v, _ := srcA.Lookup("x")
	require.Equal(t, int64(1), v)
}

func TestGet_MaterializesDefault(t *testing.T) {
	m := NewMap()
	sub, err := m.GetMap("settings")
	require.NoError(t, err)
	sub.Set("artifacts-dir", "/tmp/x")

	v, ok := m.Lookup("settings")
	require.True(t, ok)
	require.Same(t, sub, v)

	s, err := m.GetString("name", "default")
	require.NoError(t, err)
	require.Equal(t, "default", s)
	require.True(t, m.Has("name"))
}

func TestGet_Required(t *testing.T) {
	m := NewMap()
	_, err := m.Get("provisioning", Required("provisioning is not set"))
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryMissingConfig))
	require.False(t, m.Has("provisioning"))

	_, err = m.RequireString("command", "")
	require.ErrorContains(t, err, `"command"`)
}

func TestGet_TypeMismatch(t *testing.T) {
	m := MapOf("n", "not a number", "s", MapOf())

	_, err := m.GetInt("n", 0)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryTypeMismatch))

	_, err = m.GetString("s", "")
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryTypeMismatch))

	_, err = m.GetMap("n")
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryTypeMismatch))
}

func TestGetInt_AcceptsWholeFloats(t *testing.T) {
	m := MapOf("n", 3.0, "f", 2.5)
	n, err := m.GetInt("n", 0)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	_, err = m.GetInt("f", 0)
	require.Error(t, err)
}

func TestEnsureMap(t *testing.T) {
	m := MapOf("execution", []any{"first", MapOf("executor", "exec")})
	list, err := m.GetList("execution")
	require.NoError(t, err)

	first, err := EnsureMapAt(list, 0, "scenario")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"scenario": "first"}, first.ToNative())

	m.Set("module", "exec")
	mod, err := m.EnsureMap("module", "implementation")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"implementation": "exec"}, mod.ToNative())
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   any
		want time.Duration
	}{
		{int64(5), 5 * time.Second},
		{1.5, 1500 * time.Millisecond},
		{"500ms", 500 * time.Millisecond},
		{"1m30s", 90 * time.Second},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{"10", 10 * time.Second},
		{"", 0},
		{nil, 0},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, "input %v", tt.in)
		require.Equal(t, tt.want, got, "input %v", tt.in)
	}

	for _, bad := range []any{"soon", "1x", true} {
		_, err := ParseDuration(bad)
		require.Error(t, err, "input %v", bad)
	}
}

func TestGetDuration_StoresDefault(t *testing.T) {
	m := NewMap()
	d, err := m.GetDuration("check-interval", time.Second)
	require.NoError(t, err)
	require.Equal(t, time.Second, d)

	v, ok := m.Lookup("check-interval")
	require.True(t, ok)
	require.Equal(t, "1s", v)

	m.Set("hold-for", "forever")
	_, err = m.GetDuration("hold-for", 0)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryTypeMismatch))
}

func TestMaskSensitive(t *testing.T) {
	m := MapOf(
		"password", "secret123",
		"name", "bob",
		"passwordless", true,
		"nested", MapOf("API_TOKEN", "abc", "empty_secret", ""),
		"list", []any{MapOf("client-secret", "x")},
	)
	MaskSensitive(m)

	require.Equal(t, map[string]any{
		"password":     MaskValue,
		"name":         "bob",
		"passwordless": true,
		"nested":       map[string]any{"API_TOKEN": MaskValue, "empty_secret": ""},
		"list":         []any{map[string]any{"client-secret": MaskValue}},
	}, m.ToNative())
}

func TestMasked_LeavesOriginal(t *testing.T) {
	m := MapOf("token", "abc")
	masked := Masked(m)
	require.Equal(t, MaskValue, masked.ToNative()["token"])
	require.Equal(t, "abc", m.ToNative()["token"])
}
