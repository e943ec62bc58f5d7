package config

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// MarshalJSON renders the mapping as a JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	return m.om.MarshalJSON()
}

// MarshalYAML renders the mapping as a YAML mapping node in insertion order.
func (m *Map) MarshalYAML() (any, error) {
	return m.om.MarshalYAML()
}

// EncodeYAML renders m as a block-style YAML document with an explicit
// '---' start.
func EncodeYAML(m *Map) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeJSON renders m as indented JSON.
func EncodeJSON(m *Map) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
