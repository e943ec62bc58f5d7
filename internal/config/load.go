package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"gopkg.in/yaml.v3"
)

// Format identifies a configuration serialization.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Extension returns the dump file extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatYAML:
		return ".yml"
	case FormatJSON:
		return ".json"
	default:
		return ""
	}
}

// DetectFormat inspects the first line that is neither blank nor a '#'
// comment: a '---' prefix means YAML, a leading '{' means JSON.
func DetectFormat(source string, data []byte) (Format, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "---"):
			return FormatYAML, nil
		case strings.HasPrefix(trimmed, "{"):
			return FormatJSON, nil
		}
		break
	}
	return "", ferrors.FormatDetectionError(source)
}

// Parse detects the format of data and decodes it into a mapping.
func Parse(source string, data []byte) (*Map, Format, error) {
	format, err := DetectFormat(source, data)
	if err != nil {
		return nil, "", err
	}

	var value any
	switch format {
	case FormatYAML:
		value, err = decodeYAML(data)
	case FormatJSON:
		value, err = decodeJSON(data)
	}
	if err != nil {
		return nil, format, ferrors.WrapError(err, ferrors.CategoryConfig, fmt.Sprintf("failed to parse %s as %s", source, format)).
			Fatal().
			WithContext("source", source).
			Build()
	}

	switch v := value.(type) {
	case nil:
		return NewMap(), format, nil
	case *Map:
		return v, format, nil
	default:
		return nil, format, ferrors.ConfigError(fmt.Sprintf("top level of %s must be a mapping, got %T", source, value)).
			WithContext("source", source).
			Build()
	}
}

// maxYAMLAliases bounds alias expansions per document.
const maxYAMLAliases = 10000

// yamlDecoder converts a yaml.Node tree. Walking nodes bypasses the alias
// checks yaml.v3 applies when decoding into values, so they live here.
type yamlDecoder struct {
	expanding map[*yaml.Node]bool
	aliases   int
}

func decodeYAML(data []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 {
		return nil, nil
	}
	d := &yamlDecoder{expanding: make(map[*yaml.Node]bool)}
	return d.node(&doc)
}

func (d *yamlDecoder) node(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return d.node(node.Content[0])
	case yaml.AliasNode:
		return d.alias(node)
	case yaml.SequenceNode:
		list := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			value, err := d.node(item)
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		}
		return list, nil
	case yaml.MappingNode:
		return d.mapping(node)
	case yaml.ScalarNode:
		return fromYAMLScalar(node)
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", node.Line, node.Kind)
	}
}

func (d *yamlDecoder) alias(node *yaml.Node) (any, error) {
	target := node.Alias
	if target == nil {
		return nil, fmt.Errorf("line %d: unknown anchor %q", node.Line, node.Value)
	}
	if d.expanding[target] {
		return nil, fmt.Errorf("line %d: anchor %q value contains itself", node.Line, node.Value)
	}
	d.aliases++
	if d.aliases > maxYAMLAliases {
		return nil, fmt.Errorf("line %d: document expands more than %d aliases", node.Line, maxYAMLAliases)
	}
	d.expanding[target] = true
	defer delete(d.expanding, target)
	return d.node(target)
}

func (d *yamlDecoder) mapping(node *yaml.Node) (*Map, error) {
	m := NewMap()
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		value, err := d.node(valueNode)
		if err != nil {
			return nil, err
		}
		if keyNode.ShortTag() == "!!merge" {
			if err := mergeYAMLKey(m, value, keyNode.Line); err != nil {
				return nil, err
			}
			continue
		}
		m.om.Set(keyNode.Value, value)
	}
	return m, nil
}

// mergeYAMLKey applies a '<<' merge key; explicit keys already set win.
func mergeYAMLKey(m *Map, value any, line int) error {
	var sources []*Map
	switch v := value.(type) {
	case *Map:
		sources = append(sources, v)
	case []any:
		for _, item := range v {
			src, ok := item.(*Map)
			if !ok {
				return fmt.Errorf("line %d: merge key expects mappings", line)
			}
			sources = append(sources, src)
		}
	default:
		return fmt.Errorf("line %d: merge key expects a mapping", line)
	}
	for _, src := range sources {
		src.Each(func(key string, item any) {
			if !m.Has(key) {
				m.om.Set(key, deepCopy(item))
			}
		})
	}
	return nil
}

func fromYAMLScalar(node *yaml.Node) (any, error) {
	switch node.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case "!!int":
		var i int64
		if err := node.Decode(&i); err == nil {
			return i, nil
		}
		var f float64
		if err := node.Decode(&f); err != nil {
			return nil, err
		}
		return f, nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return node.Value, nil
	}
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	value, err := decodeJSONValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after top-level value at offset %d", dec.InputOffset())
	}
	return value, nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				value, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				m.om.Set(key, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		case '[':
			list := make([]any, 0)
			for dec.More() {
				value, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	default:
		// string, bool or nil
		return t, nil
	}
}
