package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Override is a single "path=value" assignment given on the command line.
type Override struct {
	Path  []string
	Value any
}

// ParseOverride parses "a.b.c=value". The value is read as a YAML
// scalar or flow collection, so "5" is a number, "true" a boolean and
// "[a, b]" a list; anything unparseable stays a plain string.
func ParseOverride(spec string) (Override, error) {
	key, raw, ok := strings.Cut(spec, "=")
	if !ok {
		return Override{}, fmt.Errorf("override %q must have the form path=value", spec)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Override{}, fmt.Errorf("override %q has an empty path", spec)
	}
	path := strings.Split(key, ".")
	for _, part := range path {
		if part == "" {
			return Override{}, fmt.Errorf("override %q has an empty path segment", spec)
		}
	}
	return Override{Path: path, Value: parseOverrideValue(raw)}, nil
}

func parseOverrideValue(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		return raw
	}
	d := &yamlDecoder{expanding: make(map[*yaml.Node]bool)}
	value, err := d.node(&doc)
	if err != nil {
		return raw
	}
	return value
}

// Apply sets every override in order.
func (c *Configuration) Apply(overrides []Override) error {
	for _, o := range overrides {
		if err := c.SetPath(o.Path, o.Value); err != nil {
			return err
		}
	}
	return nil
}
