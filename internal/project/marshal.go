package project

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal serializes a project. Output is stable for a given Project value.
func Marshal(p *Project) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("project: nil project")
	}
	data, err := encodeJSON(p)
	if err != nil {
		return nil, fmt.Errorf("project: marshal: %w", err)
	}
	return data, nil
}

// MarshalPlaceholder serializes Placeholder(name).
func MarshalPlaceholder(name string) ([]byte, error) {
	return Marshal(Placeholder(name))
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
