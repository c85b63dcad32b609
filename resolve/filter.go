// CLAUDE:SUMMARY Post-extraction record filtering on a single numeric comparison.
package resolve

import (
	"regexp"
	"strconv"
	"strings"
)

var filterExprRe = regexp.MustCompile(`^\s*(\w+)\s*(<=|>=|<|>|==?|!=)\s*\$?(\d[\d,]*(?:\.\d+)?)\s*$`)

// ApplyFilter drops records that provably fail a "field op number"
// expression. Records where the field is missing or non-numeric are kept:
// the filter removes disproven records, it never demands proof. The second
// return is false when the expression is not understood, in which case
// records come back untouched.
func ApplyFilter(records []map[string]any, expr string) ([]map[string]any, bool) {
	m := filterExprRe.FindStringSubmatch(expr)
	if m == nil {
		return records, false
	}
	field, op := m[1], m[2]
	bound, err := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", ""), 64)
	if err != nil {
		return records, false
	}

	kept := make([]map[string]any, 0, len(records))
	for _, r := range records {
		v, ok := numericValue(r[field])
		if !ok || compare(v, op, bound) {
			kept = append(kept, r)
		}
	}
	return kept, true
}

func compare(v float64, op string, bound float64) bool {
	switch op {
	case "<":
		return v < bound
	case "<=":
		return v <= bound
	case ">":
		return v > bound
	case ">=":
		return v >= bound
	case "=", "==":
		return v == bound
	case "!=":
		return v != bound
	}
	return true
}

// numericValue coerces the usual record value shapes, including price
// strings like "$1,299.00".
func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		s := strings.TrimSpace(x)
		s = strings.TrimLeft(s, "$€£¥ ")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}
