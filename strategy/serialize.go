// CLAUDE:SUMMARY Serializes a Definition to YAML, emitting only non-default fields.
package strategy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// serialized mirrors document but with omitempty so defaults stay out of the
// emitted text. Parse restores omitted fields from defaults, so the
// round-trip law holds for every field Serialize is responsible for.
type serialized struct {
	Target    string            `yaml:"target,omitempty"`
	Task      string            `yaml:"task,omitempty"`
	Algorithm string            `yaml:"algorithm,omitempty"`
	Fallback  []string          `yaml:"fallback,omitempty,flow"`
	Selector  string            `yaml:"selector,omitempty"`
	Fields    map[string]string `yaml:"fields,omitempty"`
	Filter    string            `yaml:"filter,omitempty"`
	Expect    []string          `yaml:"expect,omitempty,flow"`
	MinItems  int               `yaml:"min_items,omitempty"`
	Metadata  *docMetadata      `yaml:"metadata,omitempty"`
}

// Serialize emits a YAML strategy document. Learned metadata is grouped in a
// nested "metadata" section and only written once the strategy has been used.
func Serialize(d *Definition) ([]byte, error) {
	s := serialized{
		Target:   d.TargetPattern,
		Fallback: d.FallbackAlgorithms,
		Selector: d.Selector,
		Fields:   d.Fields,
		Filter:   d.FilterExpression,
		Expect:   d.ExpectedFields,
	}
	if d.Task != TaskGeneric {
		s.Task = d.Task
	}
	if d.Algorithm != AlgorithmAuto {
		s.Algorithm = d.Algorithm
	}
	if d.MinItems > 1 {
		s.MinItems = d.MinItems
	}
	if d.UseCount > 0 || d.SuccessRate > 0 || d.LastUsedAt > 0 {
		s.Metadata = &docMetadata{
			SuccessRate: d.SuccessRate,
			UseCount:    d.UseCount,
			LastUsedAt:  d.LastUsedAt,
		}
	}

	data, err := yaml.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("strategy: serialize: %w", err)
	}
	return data, nil
}
