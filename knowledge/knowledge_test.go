package knowledge

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(OpenMemory(t), nil)
}

func record(t *testing.T, s *Store, o *Outcome) {
	t.Helper()
	if err := s.RecordExecution(context.Background(), o); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestRecordExecutionCreatesRow(t *testing.T) {
	// WHAT: First execution for a key creates the aggregate row with the
	// right counters and means.
	s := testStore(t)
	ctx := context.Background()

	record(t, s, &Outcome{
		Target: "https://shop.example.com/widgets", Site: "shop.example.com",
		Task: "extract_products", Algorithm: "density", Selector: "div.card",
		Succeeded: true, ItemsExtracted: 6, DurationMs: 420, Timestamp: 1000,
	})

	st, err := s.StatFor(ctx, "shop.example.com", "extract_products", "density", "div.card")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st == nil {
		t.Fatal("row not created")
	}
	if st.SuccessCount != 1 || st.FailureCount != 0 {
		t.Errorf("counts: got %d/%d", st.SuccessCount, st.FailureCount)
	}
	if st.AvgItems != 6 || st.AvgTimeMs != 420 {
		t.Errorf("means: got %v items, %v ms", st.AvgItems, st.AvgTimeMs)
	}
	if st.LastUsedAt != 1000 {
		t.Errorf("last_used_at: got %d", st.LastUsedAt)
	}
}

func TestIncrementalMeanMatchesReplay(t *testing.T) {
	// WHAT: After 1000 synthetic outcomes, the stored counters and running
	// means equal a from-scratch recomputation within floating tolerance.
	// WHY: The upsert reads the pre-update count as n; if the order of
	// operations were wrong the learned averages would silently drift.
	s := testStore(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var successes, failures int
	var sumItems, sumTime float64
	n := 1000
	for i := 0; i < n; i++ {
		items := rng.Intn(50)
		dur := int64(rng.Intn(5000))
		ok := rng.Intn(2) == 0
		if ok {
			successes++
		} else {
			failures++
		}
		sumItems += float64(items)
		sumTime += float64(dur)
		record(t, s, &Outcome{
			Site: "example.com", Task: "extract", Algorithm: "density",
			Selector: "main", Succeeded: ok, ItemsExtracted: items,
			DurationMs: dur, Timestamp: int64(i + 1),
		})
	}

	st, err := s.StatFor(ctx, "example.com", "extract", "density", "main")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.SuccessCount != successes || st.FailureCount != failures {
		t.Errorf("counts: got %d/%d, want %d/%d",
			st.SuccessCount, st.FailureCount, successes, failures)
	}
	wantRate := float64(successes) / float64(n)
	if st.SuccessRate() != wantRate {
		t.Errorf("rate: got %v, want %v", st.SuccessRate(), wantRate)
	}
	if math.Abs(st.AvgItems-sumItems/float64(n)) > 1e-6 {
		t.Errorf("avg items: got %v, want %v", st.AvgItems, sumItems/float64(n))
	}
	if math.Abs(st.AvgTimeMs-sumTime/float64(n)) > 1e-6 {
		t.Errorf("avg time: got %v, want %v", st.AvgTimeMs, sumTime/float64(n))
	}
}

func TestAuditLogAppendOnly(t *testing.T) {
	// WHAT: Every outcome lands in the audit log exactly once and is
	// queryable per site, newest first.
	s := testStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		record(t, s, &Outcome{
			Site: "example.com", Task: "extract", Algorithm: "density",
			Succeeded: i%2 == 0, ItemsExtracted: i, Timestamp: int64(i * 100),
		})
	}

	hist, err := s.History(ctx, "example.com", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("entries: got %d, want 3", len(hist))
	}
	if hist[0].ItemsExtracted != 3 {
		t.Errorf("order: newest first expected, got items=%d", hist[0].ItemsExtracted)
	}
}

func TestBestStrategyForTieBreaks(t *testing.T) {
	// WHAT: Identical success rates break on success count, then on most
	// recent use.
	s := testStore(t)
	ctx := context.Background()

	// density: 2/2 successes. pattern: 1/1 success. Same rate 1.0.
	for i := 0; i < 2; i++ {
		record(t, s, &Outcome{Site: "a.com", Task: "extract", Algorithm: "density",
			Selector: "d", Succeeded: true, Timestamp: int64(10 + i)})
	}
	record(t, s, &Outcome{Site: "a.com", Task: "extract", Algorithm: "pattern",
		Selector: "p", Succeeded: true, Timestamp: 500})

	best, err := s.BestStrategyFor(ctx, "a.com", "extract", 0.5)
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	if best == nil || best.Algorithm != "density" {
		t.Fatalf("higher success count should win, got %+v", best)
	}

	// Equal rate and count: most recent last_used_at wins.
	record(t, s, &Outcome{Site: "b.com", Task: "extract", Algorithm: "old",
		Selector: "o", Succeeded: true, Timestamp: 100})
	record(t, s, &Outcome{Site: "b.com", Task: "extract", Algorithm: "new",
		Selector: "n", Succeeded: true, Timestamp: 900})

	best, err = s.BestStrategyFor(ctx, "b.com", "extract", 0.5)
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	if best == nil || best.Algorithm != "new" {
		t.Fatalf("most recent should win, got %+v", best)
	}
}

func TestBestStrategyForMinRate(t *testing.T) {
	// WHAT: A best candidate below minSuccessRate yields nil.
	s := testStore(t)
	ctx := context.Background()

	record(t, s, &Outcome{Site: "a.com", Task: "extract", Algorithm: "density",
		Succeeded: false, Timestamp: 1})
	record(t, s, &Outcome{Site: "a.com", Task: "extract", Algorithm: "density",
		Succeeded: true, Timestamp: 2})

	best, err := s.BestStrategyFor(ctx, "a.com", "extract", 0.75)
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	if best != nil {
		t.Errorf("rate 0.5 below threshold 0.75 should yield nil, got %+v", best)
	}

	if best, _ := s.BestStrategyFor(ctx, "nowhere.com", "extract", 0.5); best != nil {
		t.Errorf("unknown site should yield nil, got %+v", best)
	}
}

func TestSuggestAlgorithmOrderNoHistory(t *testing.T) {
	// WHAT: With zero rows the suggestion is exactly the built-in defaults,
	// each appearing once.
	s := testStore(t)
	order := s.SuggestAlgorithmOrder(context.Background(), "new.example.com", "extract")

	if len(order) != len(DefaultAlgorithmOrder) {
		t.Fatalf("order: got %v", order)
	}
	seen := make(map[string]int)
	for _, name := range order {
		seen[name]++
	}
	for _, name := range DefaultAlgorithmOrder {
		if seen[name] != 1 {
			t.Errorf("default %q appears %d times in %v", name, seen[name], order)
		}
	}
}

func TestSuggestAlgorithmOrderPrefersSiteHistory(t *testing.T) {
	// WHAT: A locally successful algorithm ranks ahead of the defaults and
	// never appears twice.
	s := testStore(t)
	ctx := context.Background()

	record(t, s, &Outcome{Site: "a.com", Task: "extract", Algorithm: "table",
		Succeeded: true, Timestamp: 1})
	record(t, s, &Outcome{Site: "a.com", Task: "extract", Algorithm: "density",
		Succeeded: false, Timestamp: 2})

	order := s.SuggestAlgorithmOrder(ctx, "a.com", "extract")
	if order[0] != "table" {
		t.Errorf("order: got %v, want table first", order)
	}
	seen := make(map[string]bool)
	for _, name := range order {
		if seen[name] {
			t.Errorf("duplicate %q in %v", name, order)
		}
		seen[name] = true
	}
	for _, name := range DefaultAlgorithmOrder {
		if !seen[name] {
			t.Errorf("default %q missing from %v", name, order)
		}
	}
}

func TestAlgorithmRankingsGlobalFilter(t *testing.T) {
	// WHAT: Rankings aggregate across selectors and respect site/task filters.
	s := testStore(t)
	ctx := context.Background()

	record(t, s, &Outcome{Site: "a.com", Task: "extract", Algorithm: "density",
		Selector: "x", Succeeded: true, ItemsExtracted: 4, Timestamp: 1})
	record(t, s, &Outcome{Site: "a.com", Task: "extract", Algorithm: "density",
		Selector: "y", Succeeded: true, ItemsExtracted: 8, Timestamp: 2})
	record(t, s, &Outcome{Site: "b.com", Task: "extract", Algorithm: "pattern",
		Selector: "z", Succeeded: false, Timestamp: 3})

	global, err := s.AlgorithmRankings(ctx, "", "extract")
	if err != nil {
		t.Fatalf("rankings: %v", err)
	}
	if len(global) != 2 {
		t.Fatalf("global rankings: got %d, want 2", len(global))
	}
	if global[0].Algorithm != "density" || global[0].SuccessCount != 2 {
		t.Errorf("top ranking: got %+v", global[0])
	}
	if global[0].AvgItems != 6 {
		t.Errorf("aggregated avg items: got %v, want 6", global[0].AvgItems)
	}

	siteOnly, err := s.AlgorithmRankings(ctx, "b.com", "")
	if err != nil {
		t.Fatalf("rankings: %v", err)
	}
	if len(siteOnly) != 1 || siteOnly[0].Algorithm != "pattern" {
		t.Errorf("site filter: got %+v", siteOnly)
	}
}

func TestStatistics(t *testing.T) {
	// WHAT: Store-wide summary counts keys, executions, sites, overall rate.
	s := testStore(t)
	ctx := context.Background()

	empty, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if empty.Keys != 0 || empty.OverallSuccessRate != 0 {
		t.Errorf("empty store: got %+v", empty)
	}

	record(t, s, &Outcome{Site: "a.com", Task: "extract", Algorithm: "density",
		Succeeded: true, Timestamp: 1})
	record(t, s, &Outcome{Site: "a.com", Task: "extract", Algorithm: "pattern",
		Succeeded: false, Timestamp: 2})
	record(t, s, &Outcome{Site: "b.com", Task: "extract", Algorithm: "density",
		Succeeded: true, Timestamp: 3})

	sum, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if sum.Keys != 3 || sum.Executions != 3 || sum.Sites != 2 {
		t.Errorf("summary: got %+v", sum)
	}
	if math.Abs(sum.OverallSuccessRate-2.0/3.0) > 1e-9 {
		t.Errorf("overall rate: got %v", sum.OverallSuccessRate)
	}
}

func TestReset(t *testing.T) {
	// WHAT: Reset clears aggregate rows for a site/task but keeps the audit log.
	s := testStore(t)
	ctx := context.Background()

	record(t, s, &Outcome{Site: "a.com", Task: "extract", Algorithm: "density",
		Succeeded: true, Timestamp: 1})
	if err := s.Reset(ctx, "a.com", "extract"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	st, _ := s.StatFor(ctx, "a.com", "extract", "density", "")
	if st != nil {
		t.Errorf("stats should be gone, got %+v", st)
	}
	hist, _ := s.History(ctx, "a.com", 10)
	if len(hist) != 1 {
		t.Errorf("audit log should survive reset, got %d entries", len(hist))
	}
}

func TestResetWholeSite(t *testing.T) {
	// WHAT: An empty task resets every task for the site; other sites are
	// untouched.
	// WHY: Both operator surfaces treat task as optional, so "" must mean
	// "all tasks", not "rows whose task is the empty string".
	s := testStore(t)
	ctx := context.Background()

	record(t, s, &Outcome{Site: "a.com", Task: "extract_products", Algorithm: "density",
		Succeeded: true, Timestamp: 1})
	record(t, s, &Outcome{Site: "a.com", Task: "extract_links", Algorithm: "links",
		Succeeded: true, Timestamp: 2})
	record(t, s, &Outcome{Site: "b.com", Task: "extract_products", Algorithm: "table",
		Succeeded: true, Timestamp: 3})

	if err := s.Reset(ctx, "a.com", ""); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if st, _ := s.StatFor(ctx, "a.com", "extract_products", "density", ""); st != nil {
		t.Errorf("a.com products stats should be gone, got %+v", st)
	}
	if st, _ := s.StatFor(ctx, "a.com", "extract_links", "links", ""); st != nil {
		t.Errorf("a.com links stats should be gone, got %+v", st)
	}
	if st, _ := s.StatFor(ctx, "b.com", "extract_products", "table", ""); st == nil {
		t.Error("b.com stats should survive another site's reset")
	}
}

func TestConcurrentRecordExecution(t *testing.T) {
	// WHAT: Concurrent outcomes for the same key never lose an increment.
	// WHY: The upsert must be atomic per key; lost increments would skew
	// every ranking built on top.
	s := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.RecordExecution(ctx, &Outcome{
				Site: "c.com", Task: "extract", Algorithm: "density",
				Selector: "main", Succeeded: i%2 == 0, ItemsExtracted: 1,
				Timestamp: int64(i + 1),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	st, err := s.StatFor(ctx, "c.com", "extract", "density", "main")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Attempts() != 40 {
		t.Errorf("attempts: got %d, want 40", st.Attempts())
	}
	if st.SuccessCount != 20 || st.FailureCount != 20 {
		t.Errorf("counts: got %d/%d", st.SuccessCount, st.FailureCount)
	}
}
