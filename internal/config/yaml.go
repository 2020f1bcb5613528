package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

// coerceToJSONBytes converts YAML input to JSON so both formats go through
// the same strict JSON decoder.
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	if formatOf(path) != formatYAML {
		return data, formatJSON, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, formatYAML, fmt.Errorf("yaml unmarshal: %w", err)
	}

	j, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, formatYAML, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, formatYAML, nil
}

// jsonToYAML renders JSON bytes as a YAML document.
func jsonToYAML(jb []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(jb, &v); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	return out, nil
}

// normalizeYAML makes every map key a string so the value can be marshaled
// as JSON.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
