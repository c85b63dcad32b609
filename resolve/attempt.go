// CLAUDE:SUMMARY Per-algorithm attempt dispatch: candidate-driven, table, links, judge-gated.
package resolve

import (
	"context"
	"fmt"
	"sort"

	"github.com/hazyhaar/gleaner/finder"
	"github.com/hazyhaar/gleaner/strategy"
)

// candidatesTried caps how many finder candidates one attempt walks before
// giving up. Beyond the first few the finder's ordering carries no signal.
const candidatesTried = 3

// attempt runs one named algorithm and returns the extracted records plus
// the selector that produced them.
func (e *Engine) attempt(ctx context.Context, algo, target string, strat *strategy.Definition) ([]map[string]any, string, error) {
	switch algo {
	case AlgoDensity, AlgoPattern:
		return e.attemptCandidates(ctx, algo, target, strat)
	case AlgoTable:
		return e.attemptTable(ctx, target, strat)
	case AlgoLinks:
		return e.attemptLinks(ctx, target, strat)
	case AlgoJudge:
		return e.attemptJudge(ctx, target, strat)
	default:
		return nil, "", fmt.Errorf("resolve: unknown algorithm %q", algo)
	}
}

// attemptCandidates tries the strategy's own selector first, then walks
// finder candidates. Pattern mode re-sorts by repetition count and demands
// at least minItems repeats; density mode trusts the finder's score order.
func (e *Engine) attemptCandidates(ctx context.Context, algo, target string, strat *strategy.Definition) ([]map[string]any, string, error) {
	if strat.Selector != "" {
		records, err := e.driver.ExtractWithSelector(ctx, target, strat.Selector, strat.Fields, e.cfg.MaxItems)
		if err == nil && len(records) > 0 {
			return records, strat.Selector, nil
		}
		if err != nil {
			e.logger.Debug("resolve: stored selector failed", "selector", strat.Selector, "error", err)
		}
	}

	cands, err := e.findCandidates(ctx, target, strat)
	if err != nil {
		return nil, "", err
	}
	if algo == AlgoPattern {
		minCount := strat.MinItems
		filtered := cands[:0]
		for _, c := range cands {
			if c.Count >= minCount {
				filtered = append(filtered, c)
			}
		}
		cands = filtered
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].Count > cands[j].Count })
	}

	var lastErr error
	for i, c := range cands {
		if i >= candidatesTried {
			break
		}
		records, err := e.driver.ExtractWithSelector(ctx, target, c.Selector, strat.Fields, e.cfg.MaxItems)
		if err != nil {
			lastErr = err
			continue
		}
		if len(records) > 0 {
			return records, c.Selector, nil
		}
	}
	if lastErr != nil {
		return nil, "", lastErr
	}
	return nil, "", fmt.Errorf("resolve: no candidate selector produced records")
}

// attemptTable targets tabular markup directly: body rows first so header
// rows don't pollute the records.
func (e *Engine) attemptTable(ctx context.Context, target string, strat *strategy.Definition) ([]map[string]any, string, error) {
	for _, sel := range []string{"table tbody tr", "table tr"} {
		records, err := e.driver.ExtractWithSelector(ctx, target, sel, strat.Fields, e.cfg.MaxItems)
		if err != nil {
			return nil, "", err
		}
		if len(records) > 0 {
			return records, sel, nil
		}
	}
	return nil, "", fmt.Errorf("resolve: no table rows found")
}

func (e *Engine) attemptLinks(ctx context.Context, target string, strat *strategy.Definition) ([]map[string]any, string, error) {
	fields := strat.Fields
	if len(fields) == 0 {
		fields = map[string]string{"text": "", "href": "@href"}
	}
	records, err := e.driver.ExtractWithSelector(ctx, target, "a[href]", fields, e.cfg.MaxItems)
	if err != nil {
		return nil, "", err
	}
	return records, "a[href]", nil
}

// attemptJudge extracts from each top candidate and keeps the first whose
// sample the semantic gate accepts. Without a judge wired in the gate is
// neutral, so the first structurally sound candidate wins.
func (e *Engine) attemptJudge(ctx context.Context, target string, strat *strategy.Definition) ([]map[string]any, string, error) {
	cands, err := e.findCandidates(ctx, target, strat)
	if err != nil {
		return nil, "", err
	}

	var fbRecords []map[string]any
	var fbSelector string
	for i, c := range cands {
		if i >= candidatesTried {
			break
		}
		records, err := e.driver.ExtractWithSelector(ctx, target, c.Selector, strat.Fields, e.cfg.MaxItems)
		if err != nil || len(records) == 0 {
			continue
		}
		if fbRecords == nil {
			fbRecords, fbSelector = records, c.Selector
		}
		verdict := e.validator.Validate(ctx, records, "", strat.ExpectedFields, strat.MinItems, true)
		if verdict.Passed {
			return records, c.Selector, nil
		}
	}
	if fbRecords != nil {
		return fbRecords, fbSelector, nil
	}
	return nil, "", fmt.Errorf("resolve: no candidate satisfied the judge")
}

func (e *Engine) findCandidates(ctx context.Context, target string, strat *strategy.Definition) ([]finder.Candidate, error) {
	if e.finder == nil {
		return nil, fmt.Errorf("resolve: no candidate finder configured")
	}
	hints := finder.Hints{
		Task:           strat.Task,
		ExpectedFields: strat.ExpectedFields,
		MinCount:       strat.MinItems,
	}
	return e.finder.FindCandidateSelectors(ctx, target, hints)
}
