package testing

import (
	"strings"
	"testing"

	"git.home.luguber.info/inful/loadcore/internal/config"
)

// ConfigBuilder merges YAML snippets into a configuration tree.
type ConfigBuilder struct {
	t    *testing.T
	root *config.Map
}

// NewConfigBuilder creates a builder with an empty tree.
func NewConfigBuilder(t *testing.T) *ConfigBuilder {
	return &ConfigBuilder{t: t, root: config.NewMap()}
}

// WithYAML merges a YAML document over the tree. The "---" header is
// optional.
func (b *ConfigBuilder) WithYAML(doc string) *ConfigBuilder {
	b.t.Helper()
	if !strings.HasPrefix(strings.TrimSpace(doc), "---") {
		doc = "---\n" + doc
	}
	tree, _, err := config.Parse("test.yml", []byte(doc))
	if err != nil {
		b.t.Fatalf("parse test config: %v", err)
	}
	b.root.Merge(tree)
	return b
}

// WithModule declares alias with the given implementation.
func (b *ConfigBuilder) WithModule(alias, implementation string) *ConfigBuilder {
	b.t.Helper()
	modules, err := b.root.GetMap("modules")
	if err != nil {
		b.t.Fatalf("modules section: %v", err)
	}
	entry, err := modules.GetMap(alias)
	if err != nil {
		b.t.Fatalf("module %s: %v", alias, err)
	}
	entry.Set("implementation", implementation)
	return b
}

// Build returns the tree.
func (b *ConfigBuilder) Build() *config.Map {
	return b.root
}
