// CLAUDE:SUMMARY Numeric and text field plausibility checks over extracted records.
package validate

import (
	"fmt"
	"strconv"
	"strings"
)

// Values above this are treated as implausible for any real-world price or
// count field.
const maxPlausibleNumber = 10_000_000

// A repeated identical numeric value this many times signals a selector
// that captured the same static text for every record.
const degenerateRepeat = 4

// DefaultTextFields are the fields the text check covers when the caller
// has no better list.
var DefaultTextFields = []string{"name", "title"}

// CheckNumericField flags non-numeric, non-positive, implausibly large, and
// degenerately repeated values for one field. Records lacking the field are
// the structure check's concern, not this one's.
func CheckNumericField(records []map[string]any, field string) Partial {
	if field == "" {
		field = "price"
	}
	p := Partial{Score: 1.0}

	var nonNumeric, nonPositive, tooLarge int
	identical := make(map[string]int)
	present := 0

	for _, rec := range records {
		raw, ok := rec[field]
		if !ok {
			continue
		}
		present++
		n, ok := toNumber(raw)
		if !ok {
			nonNumeric++
			continue
		}
		identical[strconv.FormatFloat(n, 'g', -1, 64)]++
		if n <= 0 {
			nonPositive++
		}
		if n > maxPlausibleNumber {
			tooLarge++
		}
	}
	if present == 0 {
		return p
	}

	if nonNumeric > 0 {
		p.Score -= 0.3
		p.Issues = append(p.Issues,
			fmt.Sprintf("%d non-numeric %q values", nonNumeric, field))
		p.Suggestions = append(p.Suggestions,
			fmt.Sprintf("the %q sub-selector may capture surrounding text", field))
	}
	if nonPositive > 0 {
		p.Score -= 0.2
		p.Issues = append(p.Issues,
			fmt.Sprintf("%d non-positive %q values", nonPositive, field))
	}
	if tooLarge > 0 {
		p.Score -= 0.2
		p.Issues = append(p.Issues,
			fmt.Sprintf("%d implausibly large %q values", tooLarge, field))
	}
	for _, count := range identical {
		if count >= degenerateRepeat {
			p.Score -= 0.3
			p.Issues = append(p.Issues,
				fmt.Sprintf("%d identical %q values, selector may capture static text", count, field))
			p.Suggestions = append(p.Suggestions,
				fmt.Sprintf("scope the %q sub-selector inside each record container", field))
			break
		}
	}

	if p.Score < 0 {
		p.Score = 0
	}
	return p
}

// CheckTextField flags non-string values, out-of-range lengths, and a
// duplicate ratio above 50% across the given fields.
func CheckTextField(records []map[string]any, fields []string) Partial {
	if len(fields) == 0 {
		fields = DefaultTextFields
	}
	p := Partial{Score: 1.0}

	var nonString, badLength, sampled, duplicates int
	for _, field := range fields {
		seen := make(map[string]int)
		for _, rec := range records {
			raw, ok := rec[field]
			if !ok {
				continue
			}
			sampled++
			s, ok := raw.(string)
			if !ok {
				nonString++
				continue
			}
			if len(s) < 3 || len(s) > 500 {
				badLength++
			}
			seen[s]++
		}
		for _, count := range seen {
			if count > 1 {
				duplicates += count
			}
		}
	}
	if sampled == 0 {
		return p
	}

	if nonString > 0 {
		p.Score -= 0.3
		p.Issues = append(p.Issues, fmt.Sprintf("%d non-string text values", nonString))
	}
	if badLength > 0 {
		p.Score -= 0.2
		p.Issues = append(p.Issues,
			fmt.Sprintf("%d text values outside the 3..500 character range", badLength))
	}
	if float64(duplicates)/float64(sampled) > 0.5 {
		p.Score -= 0.3
		p.Issues = append(p.Issues,
			fmt.Sprintf("%d of %d text values are duplicates", duplicates, sampled))
		p.Suggestions = append(p.Suggestions,
			"the text sub-selector may match a shared header element")
	}

	if p.Score < 0 {
		p.Score = 0
	}
	return p
}

// toNumber coerces common scalar encodings to float64. Strings tolerate
// currency symbols and thousands separators.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		s = strings.Trim(s, "$€£¥")
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSpace(s)
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}
