package config

import (
	"fmt"
	"os"

	"github.com/Dosada05/pickleball-eventday/models"
	"gopkg.in/yaml.v3"
)

// Policies maps events to scheduling policies. Each entry is a complete
// policy; events without an entry get Default.
type Policies struct {
	Default *models.SchedulingPolicy        `yaml:"default"`
	Events  map[int]models.SchedulingPolicy `yaml:"events"`
}

// LoadPolicies reads a YAML policy file. An empty path yields the built-in default.
func LoadPolicies(path string) (*Policies, error) {
	if path == "" {
		return &Policies{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicies(data)
}

func ParsePolicies(data []byte) (*Policies, error) {
	var p Policies
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if p.Default != nil && p.Default.MinRestInterval < 0 {
		return nil, fmt.Errorf("default min_rest_interval must not be negative")
	}
	for id, policy := range p.Events {
		if policy.MinRestInterval < 0 {
			return nil, fmt.Errorf("event %d: min_rest_interval must not be negative", id)
		}
	}
	return &p, nil
}

func (p *Policies) PolicyFor(eventID int) models.SchedulingPolicy {
	if policy, ok := p.Events[eventID]; ok {
		return policy
	}
	if p.Default != nil {
		return *p.Default
	}
	return models.DefaultSchedulingPolicy()
}
