// CLAUDE:SUMMARY Directory-backed strategy catalog: matching lookup and idempotent content-hashed save.
package strategy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Catalog is a directory of strategy documents. Any filesystem exposing
// list/read/write by path works as backing storage.
type Catalog struct {
	dir    string
	logger *slog.Logger
}

// NewCatalog creates a catalog over dir. The directory is created lazily on
// first save.
func NewCatalog(dir string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{dir: dir, logger: logger}
}

// FindMatching returns parsed definitions whose target pattern matches site
// and whose task equals the requested task or the generic fallback task.
// Order follows directory entry order (lexicographic, stable within a run).
// Malformed documents are logged and skipped, never aborting the lookup.
func (c *Catalog) FindMatching(site, task string) ([]*Definition, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read catalog dir: %v", ErrPersist, err)
	}

	var matched []*Definition
	for _, e := range entries {
		if e.IsDir() || !isStrategyFile(e.Name()) {
			continue
		}
		path := filepath.Join(c.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("catalog: unreadable document", "path", path, "error", err)
			continue
		}
		def, err := Parse(data)
		if err != nil {
			c.logger.Warn("catalog: malformed document skipped", "path", path, "error", err)
			continue
		}
		if def.MatchesSite(site) && def.MatchesTask(task) {
			matched = append(matched, def)
		}
	}
	return matched, nil
}

// Save serializes the definition and writes it under a deterministic
// filename derived from the sanitized target pattern, the task, and a
// content hash of the body. Saving the same logical strategy twice yields
// the same filename; distinct content never collides.
func (c *Catalog) Save(d *Definition) (string, error) {
	body, err := Serialize(d)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(body)
	name := fmt.Sprintf("%s_%s_%s.yaml",
		sanitizePattern(d.TargetPattern), d.Task, hex.EncodeToString(sum[:])[:12])

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir catalog: %v", ErrPersist, err)
	}
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrPersist, name, err)
	}
	return name, nil
}

// Load reads and parses a single document by filename within the catalog
// directory.
func (c *Catalog) Load(name string) (*Definition, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersist, name, err)
	}
	return Parse(data)
}

func isStrategyFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") ||
		strings.HasSuffix(name, ".strategy")
}

// sanitizePattern maps a target pattern to a filename-safe fragment.
func sanitizePattern(pattern string) string {
	if pattern == "" {
		return "any"
	}
	var sb strings.Builder
	for _, r := range pattern {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	s := strings.Trim(sb.String(), "_")
	if s == "" {
		return "any"
	}
	return s
}
