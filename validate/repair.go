// CLAUDE:SUMMARY Staged JSON repair for raw model or page-extraction responses.
package validate

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrUnrecoverableJSON means every repair stage failed. Reported as a
// structured failure reason, never a panic: callers fall back to another
// algorithm.
var ErrUnrecoverableJSON = errors.New("validate: unrecoverable json")

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// RepairJSON turns a raw response into structured data. Stages are tried in
// a fixed order, each transforming the working text before the next parse
// attempt; the first successful parse wins.
//
//  1. direct parse
//  2. strip a single fenced code block
//  3. normalize single quotes to double quotes
//  4. strip trailing commas before closing brackets
//  5. wrap a bare object (or object sequence) in an array
func RepairJSON(text string) (any, error) {
	working := strings.TrimSpace(text)
	if v, ok := tryParse(working); ok {
		return v, nil
	}

	if m := fencedBlockRe.FindStringSubmatch(working); m != nil {
		working = strings.TrimSpace(m[1])
		if v, ok := tryParse(working); ok {
			return v, nil
		}
	}

	working = strings.ReplaceAll(working, "'", `"`)
	if v, ok := tryParse(working); ok {
		return v, nil
	}

	working = trailingCommaRe.ReplaceAllString(working, "$1")
	if v, ok := tryParse(working); ok {
		return v, nil
	}

	if strings.HasPrefix(working, "{") && strings.HasSuffix(working, "}") {
		if v, ok := tryParse("[" + working + "]"); ok {
			return v, nil
		}
	}

	return nil, ErrUnrecoverableJSON
}

func tryParse(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}
