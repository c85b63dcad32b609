// CLAUDE:SUMMARY Resolution engine types: collaborator interfaces, attempt records, result shape.
// Package resolve orchestrates extraction: look up a strategy, walk the
// algorithm order attempt by attempt, validate the first non-empty result,
// record the outcome in the knowledge store, and persist a refreshed
// strategy document on success. One call to Resolve produces exactly one
// recorded execution, win or lose.
package resolve

import (
	"context"
	"errors"

	"github.com/hazyhaar/gleaner/finder"
)

// Algorithm names. These are the values stored in the knowledge store and
// in strategy documents; renaming one orphans learned history.
const (
	AlgoDensity = "density"
	AlgoPattern = "pattern"
	AlgoTable   = "table"
	AlgoLinks   = "links"
	AlgoJudge   = "judge"
)

// ErrNoDriver is returned when Resolve is called on an engine built without
// a page driver.
var ErrNoDriver = errors.New("resolve: no page driver configured")

// PageDriver fetches pages and extracts records by selector. Implementations
// own navigation, rendering and sanitization; the engine only hands over a
// selector and a field map.
type PageDriver interface {
	// ExtractWithSelector returns one record per element matched by
	// selector. Sub-selectors in fields map field names to descendant
	// elements; an "@attr" suffix ("a@href") reads an attribute instead of
	// text. An empty fields map yields {"text": ...} records.
	ExtractWithSelector(ctx context.Context, target, selector string, fields map[string]string, maxItems int) ([]map[string]any, error)

	// FillForm fills the named selectors with values and reports what was
	// actually filled. It never submits unless fields carries the reserved
	// "@submit" key.
	FillForm(ctx context.Context, target string, fields map[string]string) (*FormOutcome, error)
}

// CandidateFinder proposes container selectors for a target page, best
// first.
type CandidateFinder interface {
	FindCandidateSelectors(ctx context.Context, target string, hints finder.Hints) ([]finder.Candidate, error)
}

// FormOutcome reports the result of a form fill.
type FormOutcome struct {
	FieldsFilled []string `json:"fields_filled"`
	Submitted    bool     `json:"submitted"`
}

// Attempt is one algorithm try inside a resolution, kept for diagnostics.
type Attempt struct {
	Algorithm  string `json:"algorithm"`
	Selector   string `json:"selector,omitempty"`
	Items      int    `json:"items"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Resolution is the outcome of one Resolve call.
type Resolution struct {
	Succeeded     bool             `json:"succeeded"`
	Records       []map[string]any `json:"records,omitempty"`
	Site          string           `json:"site"`
	Task          string           `json:"task"`
	AlgorithmUsed string           `json:"algorithm_used,omitempty"`
	Selector      string           `json:"selector,omitempty"`
	Score         float64          `json:"score"`
	DurationMs    int64            `json:"duration_ms"`
	StrategyDoc   string           `json:"strategy_doc,omitempty"` // catalog filename persisted or loaded
	Tried         []Attempt        `json:"tried,omitempty"`
	Suggestions   []string         `json:"suggestions,omitempty"`
	Issues        []string         `json:"issues,omitempty"`
}
