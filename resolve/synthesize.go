// CLAUDE:SUMMARY Instruction inference: task, expected fields, filter, and min-items from free text.
package resolve

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hazyhaar/gleaner/strategy"
)

var (
	comparisonRe = regexp.MustCompile(`\b(\w+)\s*(<=|>=|<|>)\s*\$?(\d[\d,]*(?:\.\d+)?)`)
	underRe      = regexp.MustCompile(`\b(?:under|below|less than|cheaper than|at most)\s*\$?(\d[\d,]*(?:\.\d+)?)`)
	overRe       = regexp.MustCompile(`\b(?:over|above|more than)\s*\$?(\d[\d,]*(?:\.\d+)?)`)
	atLeastRe    = regexp.MustCompile(`\bat least\s+(\d+)\b`)
)

// Synthesize builds a working strategy definition from nothing but the
// instruction text: a task guess, the fields a reader would expect back,
// and any numeric constraint phrased in the instruction. Used when neither
// the knowledge store nor the catalog has anything for the site.
func Synthesize(site, instruction string) *strategy.Definition {
	lower := strings.ToLower(instruction)

	task := strategy.TaskGeneric
	switch {
	case strings.Contains(lower, "product") || strings.Contains(lower, "price") ||
		strings.Contains(lower, "item") && strings.Contains(lower, "$"):
		task = strategy.TaskProducts
	case strings.Contains(lower, "link") || strings.Contains(lower, "href") ||
		strings.Contains(lower, "url"):
		task = strategy.TaskLinks
	case strings.Contains(lower, "fill") && strings.Contains(lower, "form"):
		task = strategy.TaskFillForm
	}

	d := strategy.New(site, task)
	switch task {
	case strategy.TaskProducts:
		d.ExpectedFields = []string{"name", "price"}
	case strategy.TaskLinks:
		d.ExpectedFields = []string{"text", "href"}
	default:
		if strings.Contains(lower, "title") {
			d.ExpectedFields = []string{"title"}
		}
	}

	d.FilterExpression = inferFilter(lower, task)
	if m := atLeastRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > d.MinItems {
			d.MinItems = n
		}
	}
	return d
}

// inferFilter turns an explicit comparison ("price < 2000") or a phrased
// bound ("laptops under $2000") into a filter expression. Phrased bounds
// apply to price, the only field instructions constrain in practice.
func inferFilter(lower string, task string) string {
	if m := comparisonRe.FindStringSubmatch(lower); m != nil {
		return m[1] + " " + m[2] + " " + strings.ReplaceAll(m[3], ",", "")
	}
	if task != strategy.TaskProducts {
		return ""
	}
	if m := underRe.FindStringSubmatch(lower); m != nil {
		return "price < " + strings.ReplaceAll(m[1], ",", "")
	}
	if m := overRe.FindStringSubmatch(lower); m != nil {
		return "price > " + strings.ReplaceAll(m[1], ",", "")
	}
	return ""
}
