// CLAUDE:SUMMARY Record normalization and the structural check: counts, expected fields, empty values.
package validate

import "fmt"

// Conventional wrapper keys under which a record list may be nested.
var wrapperKeys = []string{"items", "products", "results", "data"}

// Records normalizes extraction output into a record list. Accepts a list
// of records directly, a single mapping holding a list under a conventional
// key, or a bare record treated as a one-item list. Unrecognized shapes
// yield nil.
func Records(data any) []map[string]any {
	switch d := data.(type) {
	case []map[string]any:
		return d
	case []any:
		var out []map[string]any
		for _, item := range d {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		for _, key := range wrapperKeys {
			if inner, ok := d[key]; ok {
				if records := Records(inner); records != nil {
					return records
				}
			}
		}
		// A bare record is a one-item list.
		return []map[string]any{d}
	}
	return nil
}

// CheckStructure scores the overall shape of the result: enough records,
// expected fields present in a sample, and not too many empty scalar
// values. Score floor is 0.
func CheckStructure(data any, expectedFields []string, minItems int) Partial {
	records := Records(data)
	if len(records) == 0 {
		return Partial{
			Score:       0,
			Issues:      []string{"no records extracted"},
			Suggestions: []string{"check that the selector matches repeating elements"},
		}
	}

	p := Partial{Score: 1.0}

	if len(records) < minItems {
		p.Score -= 0.4
		p.Issues = append(p.Issues,
			fmt.Sprintf("%d records extracted, need at least %d", len(records), minItems))
		p.Suggestions = append(p.Suggestions,
			"broaden the container selector or lower min_items")
	}

	// Expected fields, sampled over the first 5 records.
	sample := records
	if len(sample) > 5 {
		sample = sample[:5]
	}
	for _, field := range expectedFields {
		missing := 0
		for _, rec := range sample {
			if _, ok := rec[field]; !ok {
				missing++
			}
		}
		if missing > 0 {
			p.Score -= 0.15
			p.Issues = append(p.Issues,
				fmt.Sprintf("field %q missing in %d of %d sampled records", field, missing, len(sample)))
			p.Suggestions = append(p.Suggestions,
				fmt.Sprintf("add or fix the sub-selector for %q", field))
		}
	}

	// Empty scalar values across the first 10 records.
	empties := 0
	scan := records
	if len(scan) > 10 {
		scan = scan[:10]
	}
	for _, rec := range scan {
		for _, v := range rec {
			switch val := v.(type) {
			case nil:
				empties++
			case string:
				if val == "" {
					empties++
				}
			}
		}
	}
	if empties > len(records) {
		p.Score -= 0.2
		p.Issues = append(p.Issues,
			fmt.Sprintf("%d empty values across sampled records", empties))
		p.Suggestions = append(p.Suggestions,
			"sub-selectors may point at attributes instead of text")
	}

	if p.Score < 0 {
		p.Score = 0
	}
	return p
}
