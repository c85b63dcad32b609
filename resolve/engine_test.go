package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/hazyhaar/gleaner/finder"
	"github.com/hazyhaar/gleaner/knowledge"
	"github.com/hazyhaar/gleaner/strategy"
	_ "modernc.org/sqlite"
)

// --- Fakes ---

type fakeDriver struct {
	mu         sync.Mutex
	calls      []string // selectors, in call order
	bySelector map[string][]map[string]any
	errs       map[string]error
	formOut    *FormOutcome
}

func (d *fakeDriver) ExtractWithSelector(_ context.Context, _, selector string, _ map[string]string, _ int) ([]map[string]any, error) {
	d.mu.Lock()
	d.calls = append(d.calls, selector)
	d.mu.Unlock()
	if err := d.errs[selector]; err != nil {
		return nil, err
	}
	return d.bySelector[selector], nil
}

func (d *fakeDriver) FillForm(_ context.Context, _ string, fields map[string]string) (*FormOutcome, error) {
	if d.formOut != nil {
		return d.formOut, nil
	}
	out := &FormOutcome{}
	for k := range fields {
		out.FieldsFilled = append(out.FieldsFilled, k)
	}
	return out, nil
}

type fakeFinder struct {
	mu    sync.Mutex
	calls int
	cands []finder.Candidate
}

func (f *fakeFinder) FindCandidateSelectors(context.Context, string, finder.Hints) ([]finder.Candidate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.cands, nil
}

func testEngine(t *testing.T, drv *fakeDriver, fnd *fakeFinder) *Engine {
	t.Helper()
	store := knowledge.NewStore(knowledge.OpenMemory(t), slog.Default())
	catalog := strategy.NewCatalog(t.TempDir(), slog.Default())
	return NewEngine(store, catalog, drv, fnd)
}

func productRecords(n int) []map[string]any {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{
			"name":  fmt.Sprintf("Widget model %d", i+1),
			"price": 100.0 + float64(i)*50,
		}
	}
	return records
}

// --- Tests ---

// WHAT: a site where the default algorithms fail until the table algorithm
// produces records learns that preference: the second resolution for the
// same site tries the table algorithm first, without consulting the finder.
func TestResolveLearnsWinningAlgorithm(t *testing.T) {
	drv := &fakeDriver{bySelector: map[string][]map[string]any{
		"table tbody tr": productRecords(6),
	}}
	fnd := &fakeFinder{cands: []finder.Candidate{{Selector: "div.junk", Count: 3}}}
	e := testEngine(t, drv, fnd)
	ctx := context.Background()

	first, err := e.Resolve(ctx, "https://shop.example.com/laptops", "extract products")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if !first.Succeeded {
		t.Fatalf("first resolve failed: %+v", first)
	}
	if first.AlgorithmUsed != AlgoTable {
		t.Fatalf("first algorithm = %q, want table", first.AlgorithmUsed)
	}
	if len(first.Tried) != 3 {
		t.Errorf("first resolve tried %d algorithms, want 3 (density, pattern, table)", len(first.Tried))
	}
	if first.StrategyDoc == "" {
		t.Error("no strategy document persisted after success")
	}

	findsBefore := fnd.calls
	second, err := e.Resolve(ctx, "https://shop.example.com/laptops", "extract products")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !second.Succeeded || second.AlgorithmUsed != AlgoTable {
		t.Fatalf("second resolve = %+v, want table success", second)
	}
	if len(second.Tried) != 1 {
		t.Errorf("second resolve tried %d algorithms, want 1", len(second.Tried))
	}
	if fnd.calls != findsBefore {
		t.Errorf("finder consulted on second resolve despite learned table preference")
	}
}

// WHAT: every resolution records exactly one execution, success or failure.
func TestResolveRecordsExactlyOnce(t *testing.T) {
	drv := &fakeDriver{bySelector: map[string][]map[string]any{}}
	fnd := &fakeFinder{}
	e := testEngine(t, drv, fnd)
	ctx := context.Background()

	res, err := e.Resolve(ctx, "https://empty.example.com/", "extract products")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Succeeded {
		t.Fatal("resolve against empty driver should fail")
	}

	history, err := e.store.History(ctx, "empty.example.com", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("recorded %d executions, want 1", len(history))
	}
	if history[0].Succeeded {
		t.Error("failed resolution recorded as success")
	}
	if history[0].ErrorSummary == "" {
		t.Error("failed resolution carries no error summary")
	}
}

// WHAT: a store I/O failure while recording surfaces as an error to the
// caller even though the extraction itself succeeded, and the completed
// resolution still comes back alongside it.
// WHY: "the page failed" is a nil-error Resolution; "the bookkeeping failed"
// must be distinguishable, not swallowed into the log.
func TestResolveStoreFailurePropagates(t *testing.T) {
	drv := &fakeDriver{bySelector: map[string][]map[string]any{
		"div.card": productRecords(5),
	}}
	fnd := &fakeFinder{cands: []finder.Candidate{{Selector: "div.card", Count: 5}}}

	db := knowledge.OpenMemory(t)
	store := knowledge.NewStore(db, slog.Default())
	catalog := strategy.NewCatalog(t.TempDir(), slog.Default())
	e := NewEngine(store, catalog, drv, fnd)
	db.Close()

	res, err := e.Resolve(context.Background(), "https://shop.example.com/", "extract products")
	if err == nil {
		t.Fatal("store failure should surface as an error")
	}
	if !errors.Is(err, knowledge.ErrUnavailable) {
		t.Fatalf("error = %v, want knowledge.ErrUnavailable", err)
	}
	if res == nil || !res.Succeeded {
		t.Fatal("extraction result should still be returned when only bookkeeping failed")
	}
}

// WHAT: a result that fails validation advances to the next algorithm
// instead of being returned as a success. Here the first candidate's
// records are all filtered away by the price bound, failing the gate.
func TestResolveValidationFailureAdvances(t *testing.T) {
	expensive := []map[string]any{
		{"name": "Gold thing", "price": 5000.0},
		{"name": "Platinum thing", "price": 7000.0},
		{"name": "Diamond thing", "price": 9000.0},
	}
	drv := &fakeDriver{bySelector: map[string][]map[string]any{
		"div.junk":       expensive,
		"table tbody tr": productRecords(4),
	}}
	fnd := &fakeFinder{cands: []finder.Candidate{{Selector: "div.junk", Count: 3}}}
	e := testEngine(t, drv, fnd)

	res, err := e.Resolve(context.Background(), "https://mixed.example.com/", "extract products under $2000")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Succeeded {
		t.Fatalf("resolve failed: %+v", res)
	}
	if res.AlgorithmUsed != AlgoTable {
		t.Fatalf("algorithm = %q, want table", res.AlgorithmUsed)
	}
	var sawRejection bool
	for _, a := range res.Tried {
		if a.Error == "validation failed" {
			sawRejection = true
		}
	}
	if !sawRejection {
		t.Errorf("no attempt marked as validation failure: %+v", res.Tried)
	}
}

// WHAT: an instruction filter prunes records before validation.
func TestResolveAppliesInstructionFilter(t *testing.T) {
	records := append(productRecords(5), map[string]any{"name": "Overpriced thing", "price": 9000.0})
	drv := &fakeDriver{bySelector: map[string][]map[string]any{"div.card": records}}
	fnd := &fakeFinder{cands: []finder.Candidate{{Selector: "div.card", Count: 6}}}
	e := testEngine(t, drv, fnd)

	res, err := e.Resolve(context.Background(), "https://shop.example.com/", "extract products under $2000")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Succeeded {
		t.Fatalf("resolve failed: %+v", res)
	}
	if len(res.Records) != 5 {
		t.Fatalf("got %d records after filter, want 5", len(res.Records))
	}
	for _, r := range res.Records {
		if r["price"].(float64) >= 2000 {
			t.Errorf("record above bound survived the filter: %v", r)
		}
	}
}

// WHAT: form fills are recorded in the execution history like extractions.
func TestFillFormRecordsExecution(t *testing.T) {
	drv := &fakeDriver{}
	e := testEngine(t, drv, &fakeFinder{})
	ctx := context.Background()

	out, err := e.FillForm(ctx, "https://forms.example.com/signup", map[string]string{
		"#email": "a@b.c", "#name": "Ada",
	})
	if err != nil {
		t.Fatalf("fill form: %v", err)
	}
	if len(out.FieldsFilled) != 2 {
		t.Fatalf("filled %d fields, want 2", len(out.FieldsFilled))
	}

	history, err := e.store.History(ctx, "forms.example.com", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Task != strategy.TaskFillForm {
		t.Fatalf("history = %+v, want one fill_form execution", history)
	}
}

// WHAT: the attempt order interleaves strategy preference, declared
// fallbacks, and history suggestions without duplicates, capped at
// maxFallbacks+1.
func TestAlgorithmOrder(t *testing.T) {
	e := testEngine(t, &fakeDriver{}, &fakeFinder{})
	strat := strategy.New("example.com", strategy.TaskGeneric)
	strat.Algorithm = AlgoTable
	strat.FallbackAlgorithms = []string{AlgoDensity, AlgoTable}

	order := e.algorithmOrder(context.Background(), "example.com", strat)
	want := []string{AlgoTable, AlgoDensity, AlgoPattern, AlgoLinks}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSiteOf(t *testing.T) {
	cases := map[string]string{
		"https://Shop.Example.com/laptops?page=2": "shop.example.com",
		"http://example.com":                      "example.com",
		"example.com/path":                        "example.com",
		"example.com:8080/path":                   "example.com",
	}
	for target, want := range cases {
		if got := SiteOf(target); got != want {
			t.Errorf("SiteOf(%q) = %q, want %q", target, got, want)
		}
	}
}

func TestSynthesize(t *testing.T) {
	d := Synthesize("shop.example.com", "extract products under $2,000 from the listing")
	if d.Task != strategy.TaskProducts {
		t.Errorf("task = %q, want extract_products", d.Task)
	}
	if d.FilterExpression != "price < 2000" {
		t.Errorf("filter = %q, want price < 2000", d.FilterExpression)
	}
	if len(d.ExpectedFields) != 2 || d.ExpectedFields[1] != "price" {
		t.Errorf("expected fields = %v", d.ExpectedFields)
	}

	d = Synthesize("example.com", "collect all links with at least 10 entries")
	if d.Task != strategy.TaskLinks {
		t.Errorf("task = %q, want extract_links", d.Task)
	}
	if d.MinItems != 10 {
		t.Errorf("min items = %d, want 10", d.MinItems)
	}

	d = Synthesize("example.com", "grab rows where score >= 50")
	if d.FilterExpression != "score >= 50" {
		t.Errorf("filter = %q, want score >= 50", d.FilterExpression)
	}
}

func TestApplyFilter(t *testing.T) {
	records := []map[string]any{
		{"name": "a", "price": 100.0},
		{"name": "b", "price": "$2,500.00"},
		{"name": "c"}, // no price: kept, filter only drops disproven records
	}
	kept, ok := ApplyFilter(records, "price < 2000")
	if !ok {
		t.Fatal("expression not understood")
	}
	if len(kept) != 2 {
		t.Fatalf("kept %d records, want 2", len(kept))
	}

	same, ok := ApplyFilter(records, "price is reasonable")
	if ok || len(same) != len(records) {
		t.Errorf("malformed expression should pass records through untouched")
	}
}
