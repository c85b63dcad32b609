package validate

import (
	"errors"
	"reflect"
	"testing"
)

func TestRepairJSONDirect(t *testing.T) {
	// WHAT: Well-formed JSON parses at stage one.
	v, err := RepairJSON(`[{"a": 1}]`)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if list, ok := v.([]any); !ok || len(list) != 1 {
		t.Errorf("got %v", v)
	}
}

func TestRepairJSONFencedBlock(t *testing.T) {
	// WHAT: A single fenced code block is stripped before reparsing.
	// WHY: Model responses routinely wrap JSON in markdown fences.
	raw := "Here you go:\n```json\n{\"a\": 1}\n```\nanything else"
	v, err := RepairJSON(raw)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["a"] != float64(1) {
		t.Errorf("got %v", v)
	}
}

func TestRepairJSONQuotesAndTrailingComma(t *testing.T) {
	// WHAT: Single quotes plus a trailing comma repair via the
	// quote-normalization-then-trailing-comma stages.
	v, err := RepairJSON("{'a': 1, 'b': 2,}")
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	want := map[string]any{"a": float64(1), "b": float64(2)}
	if !reflect.DeepEqual(v, want) {
		t.Errorf("got %v, want %v", v, want)
	}
}

func TestRepairJSONWrapObjectSequence(t *testing.T) {
	// WHAT: A bare comma-separated object sequence is wrapped in an array.
	v, err := RepairJSON(`{"a": 1}, {"a": 2}`)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	list, ok := v.([]any)
	if !ok || len(list) != 2 {
		t.Errorf("got %v", v)
	}
}

func TestRepairJSONUnrecoverable(t *testing.T) {
	// WHAT: All-stage failure returns the sentinel, never panics.
	_, err := RepairJSON("this is just prose, no structure at all")
	if !errors.Is(err, ErrUnrecoverableJSON) {
		t.Errorf("got %v, want ErrUnrecoverableJSON", err)
	}
}
