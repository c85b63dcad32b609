// CLAUDE:SUMMARY Engine.Resolve: lookup, attempt loop, validation gate, single recorded execution, persist on success.
package resolve

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/gleaner/knowledge"
	"github.com/hazyhaar/gleaner/strategy"
	"github.com/hazyhaar/gleaner/validate"
)

// Config carries engine tunables. Zero values get defaults.
type Config struct {
	MaxFallbacks   int           // algorithms tried beyond the first
	AttemptTimeout time.Duration // deadline for a single attempt
	MinSuccessRate float64       // threshold for adopting a learned strategy
	MaxItems       int           // extraction cap per attempt
	SemanticCheck  bool          // include judge-backed validation
}

func (c *Config) defaults() {
	if c.MaxFallbacks <= 0 {
		c.MaxFallbacks = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 20 * time.Second
	}
	if c.MinSuccessRate <= 0 {
		c.MinSuccessRate = 0.5
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 50
	}
}

// Engine resolves extraction requests against learned strategies.
type Engine struct {
	store     *knowledge.Store
	catalog   *strategy.Catalog
	driver    PageDriver
	finder    CandidateFinder
	validator *validate.Validator
	cfg       Config
	logger    *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithValidator(v *validate.Validator) Option {
	return func(e *Engine) { e.validator = v }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine wires an engine. Store and catalog are required; driver and
// finder may be nil for surfaces that only read statistics.
func NewEngine(store *knowledge.Store, catalog *strategy.Catalog, driver PageDriver, fnd CandidateFinder, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		catalog: catalog,
		driver:  driver,
		finder:  fnd,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.defaults()
	if e.validator == nil {
		e.validator = validate.New(validate.WithLogger(e.logger))
	}
	return e
}

// Resolve runs the full loop for one target+instruction pair. It always
// returns a Resolution; the error return covers engine misconfiguration,
// context cancellation, and store/catalog I/O failures — never a merely
// failed extraction. A non-nil error can accompany a succeeded Resolution
// when the result could not be recorded or persisted.
func (e *Engine) Resolve(ctx context.Context, target, instruction string) (*Resolution, error) {
	if e.driver == nil {
		return nil, ErrNoDriver
	}
	start := time.Now()
	site := SiteOf(target)
	synth := Synthesize(site, instruction)

	strat, sourceDoc := e.lookup(ctx, site, synth)
	order := e.algorithmOrder(ctx, site, strat)

	res := &Resolution{Site: site, Task: strat.Task, StrategyDoc: sourceDoc}
	e.logger.Info("resolve: start",
		"site", site, "task", strat.Task, "order", order, "source_doc", sourceDoc)

	for _, algo := range order {
		attStart := time.Now()
		attCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		records, selector, err := e.attempt(attCtx, algo, target, strat)
		cancel()

		att := Attempt{Algorithm: algo, Selector: selector, DurationMs: time.Since(attStart).Milliseconds()}
		switch {
		case err != nil:
			att.Error = err.Error()
		case len(records) == 0:
			att.Error = "empty result"
		default:
			if strat.FilterExpression != "" {
				filtered, ok := ApplyFilter(records, strat.FilterExpression)
				if ok {
					records = filtered
				} else {
					e.logger.Warn("resolve: filter not understood, skipped",
						"filter", strat.FilterExpression)
				}
			}
			att.Items = len(records)
			verdict := e.validator.Validate(ctx, records, instruction,
				strat.ExpectedFields, strat.MinItems, e.cfg.SemanticCheck)
			if verdict.Passed {
				res.Succeeded = true
				res.Records = records
				res.AlgorithmUsed = algo
				res.Selector = selector
				res.Score = verdict.Score
				res.Issues = verdict.Issues
				res.Suggestions = verdict.Suggestions
				res.Tried = append(res.Tried, att)
			} else {
				// A result that fails the quality gate advances the loop
				// like any local failure; keep the best rejected data so a
				// fully failed resolution still reports what it saw.
				att.Error = "validation failed"
				if verdict.Score >= res.Score {
					res.Records = records
					res.Score = verdict.Score
					res.Issues = verdict.Issues
					res.Suggestions = verdict.Suggestions
					res.Selector = selector
					res.AlgorithmUsed = algo
				}
			}
		}
		if res.Succeeded {
			break
		}
		res.Tried = append(res.Tried, att)
		if ctx.Err() != nil {
			break
		}
	}

	res.DurationMs = time.Since(start).Milliseconds()
	var storeErr error
	if res.Succeeded {
		// Persist first so the recorded execution can point at the document
		// it validated; the next lookup follows that pointer for fields.
		storeErr = e.persist(strat, res)
	}
	if err := e.record(ctx, target, res.StrategyDoc, res); err != nil {
		storeErr = errors.Join(storeErr, err)
	}
	e.logger.Info("resolve: done",
		"site", site, "succeeded", res.Succeeded, "algorithm", res.AlgorithmUsed,
		"items", len(res.Records), "score", res.Score, "duration_ms", res.DurationMs)
	if storeErr != nil {
		return res, storeErr
	}
	return res, ctx.Err()
}

// FillForm fills a form on the target page and records the outcome like any
// other execution.
func (e *Engine) FillForm(ctx context.Context, target string, fields map[string]string) (*FormOutcome, error) {
	if e.driver == nil {
		return nil, ErrNoDriver
	}
	start := time.Now()
	attCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	out, err := e.driver.FillForm(attCtx, target, fields)
	cancel()

	site := SiteOf(target)
	res := &Resolution{
		Site:       site,
		Task:       strategy.TaskFillForm,
		Succeeded:  err == nil && out != nil && len(out.FieldsFilled) > 0,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Issues = append(res.Issues, err.Error())
	} else if out != nil {
		res.Records = []map[string]any{{"fields_filled": out.FieldsFilled, "submitted": out.Submitted}}
		res.Tried = []Attempt{{Algorithm: "form", Items: len(out.FieldsFilled)}}
	}
	if rerr := e.record(ctx, target, "", res); rerr != nil {
		err = errors.Join(err, rerr)
	}
	return out, err
}

// lookup picks the working strategy: learned stats first, then the catalog,
// then the synthesized definition. Instruction-derived fields backfill
// whatever the stored strategy leaves blank; an instruction filter always
// wins because it is per-request.
func (e *Engine) lookup(ctx context.Context, site string, synth *strategy.Definition) (*strategy.Definition, string) {
	strat, sourceDoc := e.lookupStored(ctx, site, synth.Task)
	if strat == nil {
		return synth, ""
	}
	if len(strat.ExpectedFields) == 0 {
		strat.ExpectedFields = synth.ExpectedFields
	}
	if len(strat.Fields) == 0 {
		strat.Fields = synth.Fields
	}
	if synth.FilterExpression != "" {
		strat.FilterExpression = synth.FilterExpression
	}
	if synth.MinItems > strat.MinItems {
		strat.MinItems = synth.MinItems
	}
	return strat, sourceDoc
}

func (e *Engine) lookupStored(ctx context.Context, site, task string) (*strategy.Definition, string) {
	best, err := e.store.BestStrategyFor(ctx, site, task, e.cfg.MinSuccessRate)
	if err != nil {
		e.logger.Warn("resolve: knowledge lookup degraded", "site", site, "error", err)
	}
	if best != nil {
		strat := strategy.New(site, task)
		if best.SourceDoc != "" {
			if loaded, err := e.catalog.Load(best.SourceDoc); err == nil {
				strat = loaded
			}
		}
		strat.Algorithm = best.Algorithm
		strat.Selector = best.Selector
		strat.SuccessRate = best.SuccessRate()
		strat.UseCount = best.Attempts()
		strat.LastUsedAt = best.LastUsedAt
		return strat, best.SourceDoc
	}

	defs, err := e.catalog.FindMatching(site, task)
	if err != nil {
		e.logger.Warn("resolve: catalog lookup degraded", "site", site, "error", err)
	}
	if len(defs) > 0 {
		return defs[0], ""
	}
	return nil, ""
}

// algorithmOrder builds the attempt order: the strategy's own algorithm,
// its declared fallbacks, then history-suggested order, de-duplicated by
// first occurrence and truncated to maxFallbacks+1.
func (e *Engine) algorithmOrder(ctx context.Context, site string, strat *strategy.Definition) []string {
	var order []string
	if strat.Algorithm != "" && strat.Algorithm != strategy.AlgorithmAuto {
		order = append(order, strat.Algorithm)
	}
	order = append(order, strat.FallbackAlgorithms...)
	order = append(order, e.store.SuggestAlgorithmOrder(ctx, site, strat.Task)...)

	seen := make(map[string]bool, len(order))
	deduped := order[:0]
	for _, a := range order {
		if !seen[a] {
			seen[a] = true
			deduped = append(deduped, a)
		}
	}
	if max := e.cfg.MaxFallbacks + 1; len(deduped) > max {
		deduped = deduped[:max]
	}
	return deduped
}

// record appends exactly one execution for this resolution. The context is
// cancellation-isolated so an aborted resolve cannot lose (or half-apply)
// its own bookkeeping. A store failure here is fatal for the call: the
// returned error wraps knowledge.ErrUnavailable.
func (e *Engine) record(ctx context.Context, target, sourceDoc string, res *Resolution) error {
	algorithm, selector := res.AlgorithmUsed, res.Selector
	if algorithm == "" && len(res.Tried) > 0 {
		algorithm = res.Tried[0].Algorithm
		selector = res.Tried[0].Selector
	}
	out := &knowledge.Outcome{
		Target:         target,
		Site:           res.Site,
		Task:           res.Task,
		Algorithm:      algorithm,
		Selector:       selector,
		Succeeded:      res.Succeeded,
		ItemsExtracted: len(res.Records),
		DurationMs:     res.DurationMs,
		ErrorSummary:   summarizeErrors(res.Tried),
		Timestamp:      time.Now().UnixMilli(),
		SourceDoc:      sourceDoc,
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.RecordExecution(rctx, out); err != nil {
		e.logger.Error("resolve: execution not recorded", "site", res.Site, "error", err)
		return err
	}
	return nil
}

// persist writes the refreshed strategy document after a successful
// resolution. The learned rate is a blend, not a replacement, so one lucky
// run cannot erase a poor history. A catalog failure is fatal for the call:
// the returned error wraps strategy.ErrPersist.
func (e *Engine) persist(strat *strategy.Definition, res *Resolution) error {
	strat.Algorithm = res.AlgorithmUsed
	strat.Selector = res.Selector
	if strat.UseCount > 0 {
		strat.SuccessRate = 0.7*strat.SuccessRate + 0.3
	} else {
		strat.SuccessRate = 1.0
	}
	strat.UseCount++
	strat.LastUsedAt = time.Now().UnixMilli()

	name, err := e.catalog.Save(strat)
	if err != nil {
		e.logger.Error("resolve: strategy not persisted", "site", res.Site, "error", err)
		return err
	}
	res.StrategyDoc = name
	return nil
}

func summarizeErrors(tried []Attempt) string {
	var parts []string
	for _, a := range tried {
		if a.Error != "" {
			parts = append(parts, a.Algorithm+": "+a.Error)
		}
	}
	s := strings.Join(parts, "; ")
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}

// SiteOf reduces a target URL to its lowercase host, the key learned
// statistics are grouped under.
func SiteOf(target string) string {
	t := target
	if !strings.Contains(t, "://") {
		t = "https://" + t
	}
	if u, err := url.Parse(t); err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}
	host, _, _ := strings.Cut(target, "/")
	return strings.ToLower(host)
}
