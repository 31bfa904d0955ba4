package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileRules is the on-disk shape of a static rules document:
//
//	fixed: [1, 4]
//	interval: 6
type fileRules struct {
	Fixed    []int `yaml:"fixed"`
	Interval int   `yaml:"interval"`
}

// LoadFile reads static rules from a YAML file.
func LoadFile(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return Decode(raw)
}

// Decode parses a YAML static rules document.
func Decode(raw []byte) (Rules, error) {
	var fr fileRules
	if err := yaml.Unmarshal(raw, &fr); err != nil {
		return Rules{}, fmt.Errorf("%w: yaml: %v", ErrMalformed, err)
	}
	return New(fr.Fixed, fr.Interval)
}
