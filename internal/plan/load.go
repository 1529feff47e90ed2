package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML plan document. It does not validate; call
// [Validate] on the returned plan before executing it.
func Load(path string) (*FeaturePlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML plan document from memory.
func Parse(data []byte) (*FeaturePlan, error) {
	var fp FeaturePlan
	if err := yaml.Unmarshal(data, &fp); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &fp, nil
}
