// CLAUDE:SUMMARY Live-page candidate finder: rendered HTML fed through statistical DOM analysis.
package driver

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/gleaner/finder"
	"github.com/hazyhaar/gleaner/resolve"
)

// Finder runs the statistical candidate analysis against rendered pages.
type Finder struct {
	drv *Driver
}

var _ resolve.CandidateFinder = (*Finder)(nil)

// NewFinder wraps a started Driver.
func NewFinder(d *Driver) *Finder {
	return &Finder{drv: d}
}

// FindCandidateSelectors renders the target and returns scored container
// candidates, best first.
func (f *Finder) FindCandidateSelectors(ctx context.Context, target string, hints finder.Hints) ([]finder.Candidate, error) {
	markup, err := f.drv.PageHTML(ctx, target)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("driver: parse page: %w", err)
	}
	return finder.FindCandidates(doc, hints), nil
}
