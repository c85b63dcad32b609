// CLAUDE:SUMMARY Tolerant parser for strategy documents: YAML and legacy @directive notation.
package strategy

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// document is the YAML shape of a strategy. Unknown keys are ignored at the
// unmarshal boundary; untyped maps never propagate past this file.
type document struct {
	Target    string            `yaml:"target"`
	Task      string            `yaml:"task"`
	Algorithm string            `yaml:"algorithm"`
	Fallback  []string          `yaml:"fallback"`
	Selector  string            `yaml:"selector"`
	Fields    map[string]string `yaml:"fields"`
	Filter    string            `yaml:"filter"`
	Expect    []string          `yaml:"expect"`
	MinItems  int               `yaml:"min_items"`
	Metadata  *docMetadata      `yaml:"metadata"`
}

type docMetadata struct {
	SuccessRate float64 `yaml:"success_rate"`
	UseCount    int     `yaml:"use_count"`
	LastUsedAt  int64   `yaml:"last_used_at"`
}

// Parse reads a strategy document in either notation. The legacy compact
// directive notation is detected by a leading "@" on the first directive
// line; everything else parses as YAML.
func Parse(data []byte) (*Definition, error) {
	if isLegacy(data) {
		return parseLegacy(data)
	}
	return parseYAML(data)
}

func isLegacy(data []byte) bool {
	for _, line := range strings.Split(string(data), "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		return strings.HasPrefix(t, "@")
	}
	return false
}

func parseYAML(data []byte) (*Definition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	d := &Definition{
		TargetPattern:      doc.Target,
		Task:               doc.Task,
		Algorithm:          doc.Algorithm,
		FallbackAlgorithms: doc.Fallback,
		Selector:           doc.Selector,
		Fields:             doc.Fields,
		FilterExpression:   doc.Filter,
		ExpectedFields:     doc.Expect,
		MinItems:           doc.MinItems,
	}
	if doc.Metadata != nil {
		d.SuccessRate = doc.Metadata.SuccessRate
		d.UseCount = doc.Metadata.UseCount
		d.LastUsedAt = doc.Metadata.LastUsedAt
	}
	d.applyDefaults()
	return d, nil
}

// parseLegacy reads the compact directive notation:
//
//	@target: *.example.com/*
//	@task: extract_products
//	@fields:
//	  name: h2
//	  price: .price
//	@fallback: pattern, table
//	# success_rate: 0.8
//
// Indented lines attach to the preceding map/list directive. Comment lines
// of the form "# key: value" carry learned metadata. Unknown directives are
// ignored.
func parseLegacy(data []byte) (*Definition, error) {
	d := &Definition{}
	current := ""

	for _, raw := range strings.Split(string(data), "\n") {
		if raw == "" {
			continue
		}
		indented := raw[0] == ' ' || raw[0] == '\t'
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#"):
			parseLegacyMetadata(d, strings.TrimSpace(strings.TrimPrefix(line, "#")))
			current = ""

		case indented && current != "":
			parseLegacySubline(d, current, line)

		case strings.HasPrefix(line, "@"):
			key, value, ok := cutDirective(line)
			if !ok {
				return nil, fmt.Errorf("%w: directive %q", ErrMalformed, line)
			}
			current = ""
			if value == "" {
				// Block directive: sub-lines follow.
				current = key
				continue
			}
			parseLegacyDirective(d, key, value)

		default:
			return nil, fmt.Errorf("%w: unexpected line %q", ErrMalformed, line)
		}
	}

	d.applyDefaults()
	return d, nil
}

func cutDirective(line string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(strings.TrimPrefix(line, "@"), ":")
	return strings.TrimSpace(key), strings.TrimSpace(value), ok
}

func parseLegacyDirective(d *Definition, key, value string) {
	switch key {
	case "target", "target_pattern":
		d.TargetPattern = value
	case "task":
		d.Task = value
	case "algorithm":
		d.Algorithm = value
	case "fallback", "fallbacks":
		d.FallbackAlgorithms = splitList(value)
	case "selector":
		d.Selector = value
	case "filter":
		d.FilterExpression = value
	case "expect", "expected_fields":
		d.ExpectedFields = splitList(value)
	case "min_items":
		if n, err := strconv.Atoi(value); err == nil {
			d.MinItems = n
		}
	}
	// Unknown directives are ignored.
}

// parseLegacySubline handles an indented line under a block directive:
// "name: h2" for map-valued fields, "- item" for list-valued ones.
func parseLegacySubline(d *Definition, directive, line string) {
	if item, ok := strings.CutPrefix(line, "- "); ok {
		switch directive {
		case "fallback", "fallbacks":
			d.FallbackAlgorithms = append(d.FallbackAlgorithms, strings.TrimSpace(item))
		case "expect", "expected_fields":
			d.ExpectedFields = append(d.ExpectedFields, strings.TrimSpace(item))
		}
		return
	}
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	if directive == "fields" {
		if d.Fields == nil {
			d.Fields = make(map[string]string)
		}
		d.Fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
}

// parseLegacyMetadata reads "key: value" learned metadata out of a comment.
func parseLegacyMetadata(d *Definition, comment string) {
	key, value, ok := strings.Cut(comment, ":")
	if !ok {
		return
	}
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	switch key {
	case "success_rate":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			d.SuccessRate = f
		}
	case "use_count":
		if n, err := strconv.Atoi(value); err == nil {
			d.UseCount = n
		}
	case "last_used", "last_used_at":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			d.LastUsedAt = n
		}
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
