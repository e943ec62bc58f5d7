package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Format
		err  bool
	}{
		{"yaml", "---\na: 1\n", FormatYAML, false},
		{"yaml after comment", "# header\n\n---\na: 1\n", FormatYAML, false},
		{"json", "{\"a\": 1}", FormatJSON, false},
		{"json indented", "\n   {\n \"a\": 1}", FormatJSON, false},
		{"bare yaml", "a: 1\n", "", true},
		{"empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat("test", []byte(tt.data))
			if tt.err {
				require.True(t, ferrors.HasCategory(err, ferrors.CategoryFormatDetection))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParse_YAMLPreservesOrderAndTypes(t *testing.T) {
	src := `---
zeta: 1
alpha: 2.5
flag: true
none: null
name: "007"
list: [a, 1]
nested:
  b: x
  a: y
`
	m, format, err := Parse("test.yml", []byte(src))
	require.NoError(t, err)
	require.Equal(t, FormatYAML, format)
	require.Equal(t, []string{"zeta", "alpha", "flag", "none", "name", "list", "nested"}, m.Keys())
	require.Equal(t, map[string]any{
		"zeta":   int64(1),
		"alpha":  2.5,
		"flag":   true,
		"none":   nil,
		"name":   "007",
		"list":   []any{"a", int64(1)},
		"nested": map[string]any{"b": "x", "a": "y"},
	}, m.ToNative())

	nested, err := m.GetMap("nested")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, nested.Keys())
}

func TestParse_YAMLMergeKeys(t *testing.T) {
	src := `---
base: &base
  a: 1
  b: 2
derived:
  <<: *base
  b: 3
`
	m, _, err := Parse("test.yml", []byte(src))
	require.NoError(t, err)
	derived, err := m.GetMap("derived")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": int64(1), "b": int64(3)}, derived.ToNative())
}

func TestParse_JSONPreservesOrder(t *testing.T) {
	m, format, err := Parse("test.json", []byte(`{"z": {"b": 1, "a": [1.5, "s", null]}, "y": false}`))
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)
	require.Equal(t, []string{"z", "y"}, m.Keys())
	z, err := m.GetMap("z")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, z.Keys())
	require.Equal(t, []any{1.5, "s", nil}, z.ToNative()["a"])
}

func TestParse_NullDocumentIsEmpty(t *testing.T) {
	m, _, err := Parse("empty.yml", []byte("---\n"))
	require.NoError(t, err)
	require.Equal(t, 0, m.Len())
}

func TestParse_Errors(t *testing.T) {
	_, _, err := Parse("bad.json", []byte(`{"a": `))
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	_, _, err = Parse("list.yml", []byte("---\n- a\n- b\n"))
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	_, _, err = Parse("cyc.yml", []byte("---\na: &x\n  b: *x\n"))
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	require.Contains(t, err.Error(), "contains itself")

	fanout := "---\nbase: &v [1]\nrefs: [" + strings.TrimSuffix(strings.Repeat("*v, ", maxYAMLAliases+1), ", ") + "]\n"
	_, _, err = Parse("fanout.yml", []byte(fanout))
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	require.Contains(t, err.Error(), "aliases")
}

func TestParse_SiblingAliasesExpand(t *testing.T) {
	root, _, err := Parse("ok.yml", []byte("---\nbase: &b {x: 1}\none: *b\ntwo: *b\n"))
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"base": map[string]any{"x": int64(1)},
		"one":  map[string]any{"x": int64(1)},
		"two":  map[string]any{"x": int64(1)},
	}, root.ToNative())
}

func TestConfiguration_LoadMergesInOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.yml")
	second := filepath.Join(dir, "second.json")
	require.NoError(t, os.WriteFile(first, []byte("---\na:\n  x: 1\nb: 1\n"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte(`{"a": {"y": 2}, "b": 2}`), 0o600))

	c := New(slog.New(slog.DiscardHandler))
	var loaded []string
	require.NoError(t, c.Load([]string{first, second}, func(p string) { loaded = append(loaded, p) }))
	require.Equal(t, []string{first, second}, loaded)
	require.Equal(t, map[string]any{
		"a": map[string]any{"x": int64(1), "y": int64(2)},
		"b": int64(2),
	}, c.Root().ToNative())
}

func TestConfiguration_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.conf")
	require.NoError(t, os.WriteFile(bad, []byte("a = 1\n"), 0o600))

	c := New(nil)
	err := c.Load([]string{bad}, nil)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryFormatDetection))
	require.Contains(t, err.Error(), "bad.conf")
	require.Contains(t, err.Error(), "'---' YAML header")

	err = c.Load([]string{filepath.Join(dir, "missing.yml")}, nil)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestConfiguration_PathAccess(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.SetPath([]string{"settings", "artifacts-dir"}, "/tmp/a"))

	v, ok := c.Lookup("settings", "artifacts-dir")
	require.True(t, ok)
	require.Equal(t, "/tmp/a", v)

	_, ok = c.Lookup("settings", "missing", "deeper")
	require.False(t, ok)

	c.Set("included-configs", []any{"x.yml"})
	popped, ok := c.Pop("included-configs")
	require.True(t, ok)
	require.Equal(t, []any{"x.yml"}, popped)
	require.False(t, c.Has("included-configs"))

	require.Error(t, c.SetPath(nil, 1))
}

func TestConfiguration_DumpBothFormats(t *testing.T) {
	dir := t.TempDir()
	c := New(nil)
	c.Merge(MapOf(
		"b", MapOf("password", "hunter2", "n", 1),
		"a", []any{"x", true, nil},
	))

	stem := filepath.Join(dir, "effective")
	c.SetDumpFile(stem)
	require.NoError(t, c.Dump("", ""))

	yml, err := os.ReadFile(stem + ".yml")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(yml, []byte("---\n")))
	require.NotContains(t, string(yml), "hunter2")

	js, err := os.ReadFile(stem + ".json")
	require.NoError(t, err)
	require.Equal(t, "{\n  \"b\": {\n    \"password\": \"********\",\n    \"n\": 1\n  },\n  \"a\": [\n    \"x\",\n    true,\n    null\n  ]\n}\n", string(js))

	// The in-memory tree keeps the real value.
	v, _ := c.Lookup("b", "password")
	require.Equal(t, "hunter2", v)

	// Both dumps load back to the same masked tree.
	fromYAML, _, err := Parse("effective.yml", yml)
	require.NoError(t, err)
	fromJSON, _, err := Parse("effective.json", js)
	require.NoError(t, err)
	require.Equal(t, fromJSON.ToNative(), fromYAML.ToNative())
	require.Equal(t, fromJSON.Keys(), fromYAML.Keys())
}

func TestConfiguration_DumpWithoutPathIsNoop(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Dump("", ""))
}

func TestConfiguration_CloneIsIndependent(t *testing.T) {
	c := New(nil)
	c.Set("a", MapOf("x", 1))
	clone := c.Clone()
	require.NoError(t, clone.SetPath([]string{"a", "x"}, 2))
	v, _ := c.Lookup("a", "x")
	require.Equal(t, int64(1), v)
}

func TestReadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.env")
	require.NoError(t, os.WriteFile(path, []byte("FOO=bar\n# comment\nBAZ=\"q u x\"\n"), 0o600))
	env, err := ReadEnvFile(path)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"FOO": "bar", "BAZ": "q u x"}, env)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.env")
	present := filepath.Join(dir, "present.env")
	require.NoError(t, os.WriteFile(present, []byte("LOADCORE_DOTENV_PROBE=loaded\nLOADCORE_DOTENV_KEPT=file\n"), 0o600))

	t.Setenv("LOADCORE_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("LOADCORE_DOTENV_PROBE"))
	t.Setenv("LOADCORE_DOTENV_KEPT", "process")

	path, err := LoadDotEnv(missing, present)
	require.NoError(t, err)
	require.Equal(t, present, path)
	require.Equal(t, "loaded", os.Getenv("LOADCORE_DOTENV_PROBE"))
	require.Equal(t, "process", os.Getenv("LOADCORE_DOTENV_KEPT"))

	path, err = LoadDotEnv(missing)
	require.NoError(t, err)
	require.Empty(t, path)
}
