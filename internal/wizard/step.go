package wizard

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy selects how a step's completion is judged.
type Policy string

const (
	// PolicyFieldPresence requires every Required field to be non-empty.
	PolicyFieldPresence Policy = "field_presence"
	// PolicyAlwaysValid is for optional or terminal steps.
	PolicyAlwaysValid Policy = "always_valid"
	// PolicyDelegated trusts the validity the step reports about itself.
	PolicyDelegated Policy = "delegated"
)

// Payload is the open JSON record a step reports.
type Payload map[string]any

// StepDescriptor is the static configuration of one wizard step.
type StepDescriptor struct {
	Index    int                `yaml:"index" json:"index"`
	Label    string             `yaml:"label" json:"label"`
	Policy   Policy             `yaml:"policy" json:"policy"`
	Required []string           `yaml:"required,omitempty" json:"required,omitempty"`
	Fields   map[string]Reducer `yaml:"fields,omitempty" json:"fields,omitempty"`
	// Exempt steps are pure navigation: they need no payload and are never
	// persisted.
	Exempt bool `yaml:"exempt,omitempty" json:"exempt,omitempty"`
	// Optional steps accept an empty payload, which is persisted as {}.
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// DefaultSteps returns the onboarding catalog.
func DefaultSteps() []StepDescriptor {
	return []StepDescriptor{
		{
			Index:    0,
			Label:    "API Keys",
			Policy:   PolicyFieldPresence,
			Required: []string{"api_keys"},
			Fields:   map[string]Reducer{"api_keys": ReduceMergeMap},
		},
		{
			Index:    1,
			Label:    "Website",
			Policy:   PolicyFieldPresence,
			Required: []string{"website_url", "analysis"},
			Fields: map[string]Reducer{
				"website_url":            ReduceReplace,
				"analysis":               ReduceReplace,
				"use_analysis_for_genai": ReduceReplace,
			},
		},
		{
			Index:    2,
			Label:    "Research",
			Policy:   PolicyFieldPresence,
			Required: []string{"research_summary"},
			Fields: map[string]Reducer{
				"website_url":      ReduceReplace,
				"keywords":         ReduceAppendUnique,
				"competitors":      ReduceReplace,
				"research_summary": ReduceReplace,
				"industry_context": ReduceReplace,
			},
		},
		{
			Index:    3,
			Label:    "Persona",
			Policy:   PolicyDelegated,
			Required: []string{"core_persona"},
			Fields: map[string]Reducer{
				"core_persona":       ReduceReplace,
				"platform_personas":  ReduceMergeMap,
				"selected_platforms": ReduceAppendUnique,
				"quality_metrics":    ReduceReplace,
			},
		},
		{
			Index:    4,
			Label:    "Integrations",
			Policy:   PolicyAlwaysValid,
			Optional: true,
			Fields:   map[string]Reducer{"integrations": ReduceMergeMap},
		},
		{
			Index:    5,
			Label:    "Finish",
			Policy:   PolicyAlwaysValid,
			Optional: true,
			Fields:   map[string]Reducer{"confirmed": ReduceReplace},
		},
	}
}

// LoadSteps reads a step catalog from a YAML file of the form
//
//	steps:
//	  - index: 0
//	    label: API Keys
//	    policy: field_presence
//	    required: [api_keys]
//	    fields: {api_keys: merge_map}
func LoadSteps(path string) ([]StepDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read step catalog: %w", err)
	}
	var doc struct {
		Steps []StepDescriptor `yaml:"steps"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse step catalog %s: %w", path, err)
	}
	if err := checkSteps(doc.Steps); err != nil {
		return nil, fmt.Errorf("step catalog %s: %w", path, err)
	}
	return doc.Steps, nil
}

func checkSteps(steps []StepDescriptor) error {
	if len(steps) == 0 {
		return fmt.Errorf("no steps defined")
	}
	for i, s := range steps {
		if s.Index != i {
			return fmt.Errorf("step %q has index %d, want %d", s.Label, s.Index, i)
		}
		switch s.Policy {
		case PolicyFieldPresence, PolicyAlwaysValid, PolicyDelegated:
		default:
			return fmt.Errorf("step %d: unknown policy %q", i, s.Policy)
		}
		if s.Policy == PolicyFieldPresence && len(s.Required) == 0 {
			return fmt.Errorf("step %d: field presence policy needs required fields", i)
		}
		for _, name := range s.Required {
			if _, ok := s.Fields[name]; !ok {
				return fmt.Errorf("step %d: required field %q is not declared", i, name)
			}
		}
		for name, r := range s.Fields {
			if !r.valid() {
				return fmt.Errorf("step %d: field %q has unknown reducer %q", i, name, r)
			}
		}
	}
	return nil
}
