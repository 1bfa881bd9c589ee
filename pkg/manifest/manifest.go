// Package manifest reads the component set definition file
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cspack/cspack/pkg/types"
)

// ErrMissingName is returned when the manifest declares no name
var ErrMissingName = errors.New("manifest has no name")

// Load reads and parses the manifest at path
func Load(path string) (*types.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes manifest JSON and requires a non-empty name
func Parse(data []byte) (*types.Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m := &types.Manifest{Raw: raw}
	if nameJSON, ok := raw["name"]; ok {
		if err := json.Unmarshal(nameJSON, &m.Name); err != nil {
			return nil, fmt.Errorf("manifest name must be a string: %w", err)
		}
	}
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return nil, ErrMissingName
	}
	return m, nil
}
