// CLAUDE:SUMMARY Semantic judge contract and the bounded-sample semantic check.
package validate

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Quality labels a judge may return.
const (
	QualityGood    = "good"
	QualityPartial = "partial"
	QualityPoor    = "poor"
)

// Judgement is a semantic judge's rating of a record sample against an
// instruction.
type Judgement struct {
	Quality   string   `json:"quality"`
	Issues    []string `json:"issues,omitempty"`
	Narrative string   `json:"narrative,omitempty"`
}

// Judge rates whether a sample of extracted records plausibly satisfies a
// natural-language instruction. Implementations are external collaborators;
// the validator owns sampling and truncation.
type Judge interface {
	Judge(ctx context.Context, instruction string, sample []map[string]any) (*Judgement, error)
}

// Sample bounds: at most this many records, each field value truncated.
const (
	judgeSampleRecords = 3
	judgeFieldMaxLen   = 120
)

// truncateUTF8 cuts s to at most max bytes without splitting a rune.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// checkSemantic sends a bounded sample to the judge and maps its categorical
// rating to a score. A judge failure scores 0.5 with a neutral issue so a
// flaky judge degrades gracefully instead of failing the resolution.
func (v *Validator) checkSemantic(ctx context.Context, records []map[string]any, instruction string) (Partial, string) {
	sample := make([]map[string]any, 0, judgeSampleRecords)
	for i, rec := range records {
		if i >= judgeSampleRecords {
			break
		}
		truncated := make(map[string]any, len(rec))
		for k, val := range rec {
			if s, ok := val.(string); ok {
				val = truncateUTF8(s, judgeFieldMaxLen)
			}
			truncated[k] = val
		}
		sample = append(sample, truncated)
	}

	j, err := v.judge.Judge(ctx, instruction, sample)
	if err != nil {
		v.logger.Warn("validate: semantic judge unavailable", "error", err)
		return Partial{
			Score:  0.5,
			Issues: []string{"semantic judge unavailable, rating skipped"},
		}, ""
	}

	p := Partial{Issues: j.Issues}
	switch j.Quality {
	case QualityGood:
		p.Score = 1.0
	case QualityPartial:
		p.Score = 0.6
	case QualityPoor:
		p.Score = 0.3
	default:
		p.Score = 0.5
		p.Issues = append(p.Issues,
			fmt.Sprintf("judge returned unrecognized quality %q", j.Quality))
	}
	return p, j.Narrative
}
