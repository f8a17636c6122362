package validation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChainTemplate is a declaratively defined approval chain, so the
// surrounding API layer can keep its validation circuits in YAML.
type ChainTemplate struct {
	Name   string      `yaml:"name"`
	Levels []LevelSpec `yaml:"levels"`
}

// ParseTemplate reads a chain template from YAML bytes.
func ParseTemplate(data []byte) (*ChainTemplate, error) {
	var t ChainTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("validation: parse template: %w", err)
	}
	if t.Name == "" {
		return nil, fmt.Errorf("validation: template has no name")
	}
	if len(t.Levels) == 0 {
		return nil, ErrNoLevels
	}
	for i, l := range t.Levels {
		if l.Name == "" {
			return nil, fmt.Errorf("validation: template %s: level %d has no name", t.Name, i+1)
		}
		if len(l.Validators) == 0 && !l.AutoApprove {
			return nil, fmt.Errorf("validation: template %s: level %d (%s) has no validators", t.Name, i+1, l.Name)
		}
	}
	return &t, nil
}

// LoadTemplate reads a chain template from a YAML file.
func LoadTemplate(path string) (*ChainTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("validation: read template: %w", err)
	}
	return ParseTemplate(data)
}
