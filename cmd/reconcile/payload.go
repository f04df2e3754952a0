package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/project-reconciler/internal/types"
)

// readPayloads loads the payloads in path. JSON and YAML files may hold a
// single object or a list of objects.
func readPayloads(path string) ([]types.Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return parsePayloads(data, format)
}

func parsePayloads(data []byte, format string) ([]types.Document, error) {
	switch format {
	case "yaml", "yml":
		var raw interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		// re-encode so numbers and nesting match what the API receives
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
		data = encoded
	case "json", "":
	default:
		return nil, fmt.Errorf("unsupported payload format %q (want json or yaml)", format)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("no payloads found")
	}
	if trimmed[0] == '{' {
		var doc types.Document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("parse payload: %w", err)
		}
		return []types.Document{doc}, nil
	}

	var docs []types.Document
	if err := json.Unmarshal(trimmed, &docs); err != nil {
		return nil, fmt.Errorf("parse payloads: %w", err)
	}
	return docs, nil
}

func printJSON(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(output))
	return nil
}
