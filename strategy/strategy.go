// CLAUDE:SUMMARY Strategy definition type, defaults, invariants, and target pattern matching.
// Package strategy defines extraction strategy documents: which algorithm to
// try against which site pattern, with what selector and field map, plus the
// learned metadata carried between runs.
//
// A strategy serializes to a YAML document and also parses from the legacy
// compact directive notation (lines of the form "@key: value"). Both
// notations produce field-for-field-equal definitions.
package strategy

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Well-known tasks. TaskGeneric matches any requested task during catalog
// lookup.
const (
	TaskGeneric  = "extract"
	TaskProducts = "extract_products"
	TaskLinks    = "extract_links"
	TaskFillForm = "fill_form"
)

// AlgorithmAuto is a sentinel: the engine picks the order, nothing executes
// under this name.
const AlgorithmAuto = "auto"

// ErrMalformed is returned when a document fails to parse even after
// tolerant parsing. Catalog lookup logs and skips such documents.
var ErrMalformed = errors.New("strategy: malformed document")

// ErrPersist is returned when catalog storage is unreachable or unwritable.
var ErrPersist = errors.New("strategy: catalog storage failure")

// Definition is one extraction strategy: configuration plus advisory learned
// metadata. Authoritative counts live in the knowledge store.
type Definition struct {
	TargetPattern      string            `json:"target_pattern"`
	Task               string            `json:"task"`
	Algorithm          string            `json:"algorithm"`
	FallbackAlgorithms []string          `json:"fallback_algorithms,omitempty"`
	Selector           string            `json:"selector,omitempty"`
	Fields             map[string]string `json:"fields,omitempty"` // field name → sub-selector
	FilterExpression   string            `json:"filter_expression,omitempty"` // e.g. "price < 2000"
	ExpectedFields     []string          `json:"expected_fields,omitempty"`
	MinItems           int               `json:"min_items"`

	// Learned metadata, advisory only.
	SuccessRate float64 `json:"success_rate"`
	UseCount    int     `json:"use_count"`
	LastUsedAt  int64   `json:"last_used_at"` // unix millis
}

// New returns a fresh definition with defaults applied.
func New(targetPattern, task string) *Definition {
	d := &Definition{TargetPattern: targetPattern, Task: task}
	d.applyDefaults()
	return d
}

// applyDefaults fills zero values and clamps invariants. Unknown or missing
// fields default rather than error, to tolerate partial documents.
func (d *Definition) applyDefaults() {
	if d.Task == "" {
		d.Task = TaskGeneric
	}
	if d.Algorithm == "" {
		d.Algorithm = AlgorithmAuto
	}
	if d.MinItems < 1 {
		d.MinItems = 1
	}
	if d.SuccessRate < 0 {
		d.SuccessRate = 0
	}
	if d.SuccessRate > 1 {
		d.SuccessRate = 1
	}
	if d.UseCount < 0 {
		d.UseCount = 0
	}
}

// MatchesTask reports whether this definition serves the requested task.
// A generic definition serves every task.
func (d *Definition) MatchesTask(task string) bool {
	return d.Task == task || d.Task == TaskGeneric
}

// MatchesSite reports whether the target pattern matches a site identifier.
// "*" is a DNS-style wildcard: "*.example.com" matches "shop.example.com"
// and the apex "example.com". Patterns carrying a path component
// ("*.example.com/*") also match the bare host.
func (d *Definition) MatchesSite(site string) bool {
	return PatternMatches(d.TargetPattern, site)
}

// PatternMatches implements the site pattern match used by MatchesSite.
func PatternMatches(pattern, site string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	host := pattern
	if base, _, found := strings.Cut(pattern, "/"); found {
		host = base
	}
	if ok, err := doublestar.Match(host, site); err == nil && ok {
		return true
	}
	// DNS wildcard convenience: "*.example.com" also covers the apex.
	if apex, ok := strings.CutPrefix(host, "*."); ok && apex == site {
		return true
	}
	return false
}
