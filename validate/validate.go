// CLAUDE:SUMMARY Validator: composes structure, field, and semantic checks into one verdict.
// Package validate is the quality gate between a raw extraction result and
// a declared success. Deterministic structural and field checks are small
// pure functions each returning a bounded [0,1] partial score; an optional
// semantic judge adds one more partial. The final score is the arithmetic
// mean of all partials produced.
package validate

import (
	"context"
	"log/slog"
	"strings"
)

// Verdict is the validator's output. Created fresh per call, never
// persisted directly.
type Verdict struct {
	Passed         bool     `json:"passed"`
	Score          float64  `json:"score"`
	Issues         []string `json:"issues,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
	JudgeNarrative string   `json:"judge_narrative,omitempty"`
}

// Partial is one check's contribution: a bounded [0,1] score plus
// human-readable findings.
type Partial struct {
	Score       float64
	Issues      []string
	Suggestions []string
}

// Validator runs the quality gate. The semantic judge is optional.
type Validator struct {
	judge  Judge
	logger *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithJudge wires a semantic judge. Without one, semantic checks are
// silently skipped.
func WithJudge(j Judge) Option {
	return func(v *Validator) { v.judge = j }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{logger: slog.Default()}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate runs the structure check, the numeric/text checks applicable to
// expectedFields, and (when requested and configured) the semantic check.
// Passed requires a mean score of at least 0.5 and no issue mentioning
// "error".
func (v *Validator) Validate(ctx context.Context, data any, instruction string, expectedFields []string, minItems int, useSemantic bool) *Verdict {
	records := Records(data)

	partials := []Partial{CheckStructure(data, expectedFields, minItems)}

	verdict := &Verdict{}
	// With no records there is nothing for the field or semantic checks to
	// sample; letting their neutral scores in would dilute the structural
	// zero into a pass.
	if len(records) > 0 {
		if containsField(expectedFields, "price") {
			partials = append(partials, CheckNumericField(records, "price"))
		}
		var textFields []string
		for _, f := range DefaultTextFields {
			if containsField(expectedFields, f) {
				textFields = append(textFields, f)
			}
		}
		if len(textFields) > 0 {
			partials = append(partials, CheckTextField(records, textFields))
		}
		if useSemantic && v.judge != nil {
			semantic, narrative := v.checkSemantic(ctx, records, instruction)
			partials = append(partials, semantic)
			verdict.JudgeNarrative = narrative
		}
	}

	var total float64
	for _, p := range partials {
		total += p.Score
		verdict.Issues = append(verdict.Issues, p.Issues...)
		verdict.Suggestions = append(verdict.Suggestions, p.Suggestions...)
	}
	verdict.Score = total / float64(len(partials))
	verdict.Passed = verdict.Score >= 0.5 && !mentionsError(verdict.Issues)
	return verdict
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

func mentionsError(issues []string) bool {
	for _, issue := range issues {
		if strings.Contains(strings.ToLower(issue), "error") {
			return true
		}
	}
	return false
}
