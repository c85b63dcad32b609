// CLAUDE:SUMMARY Rod-backed page driver: stealth navigation, selector extraction, form filling.
// Package driver renders target pages in headless Chrome via Rod and
// extracts records by CSS selector. All text leaving this package passes
// through a strict HTML sanitizer; downstream code never sees raw markup.
package driver

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/gleaner/resolve"
)

// Config configures the driver.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// NavTimeout bounds navigation plus load wait per page. Default: 30s.
	NavTimeout time.Duration

	// Stealth applies anti-detection patches to every page. Default on via
	// defaults(); set SkipStealth to opt out.
	SkipStealth bool

	// BlockResources lists resource types to block (images, fonts, media,
	// stylesheets). Blocking images and fonts roughly halves page weight.
	BlockResources []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Driver owns one Chrome connection and serves page operations on it.
type Driver struct {
	cfg       Config
	sanitizer *bluemonday.Policy

	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

var _ resolve.PageDriver = (*Driver)(nil)

// New creates a Driver. Call Start before use.
func New(cfg Config) *Driver {
	cfg.defaults()
	return &Driver{cfg: cfg, sanitizer: bluemonday.StrictPolicy()}
}

// Start launches Chrome (or connects to a remote instance).
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("driver: closed")
	}

	var wsURL string
	if d.cfg.RemoteURL != "" {
		wsURL = d.cfg.RemoteURL
		d.cfg.Logger.Info("driver: connecting to remote chrome", "url", wsURL)
	} else {
		l := launcher.New().Headless(true)
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("driver: launch: %w", err)
		}
		wsURL = u
		d.lnch = l
		d.cfg.Logger.Info("driver: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("driver: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		d.cfg.Logger.Warn("driver: ignore cert errors failed", "error", err)
	}
	d.browser = b
	return nil
}

// Close shuts down Chrome.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.browser != nil {
		d.browser.Close()
		d.browser = nil
	}
	if d.lnch != nil {
		d.lnch.Cleanup()
		d.lnch = nil
	}
	return nil
}

// ExtractWithSelector returns one record per element matched by selector.
// Sub-selectors in fields address descendants; a "@attr" suffix reads an
// attribute instead of text. An empty fields map yields {"text": ...}
// records. Elements where no field resolves are dropped.
func (d *Driver) ExtractWithSelector(ctx context.Context, target, selector string, fields map[string]string, maxItems int) ([]map[string]any, error) {
	page, err := d.openPage(ctx, target)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	els, err := page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("driver: query %q: %w", selector, err)
	}

	var records []map[string]any
	for _, el := range els {
		if maxItems > 0 && len(records) >= maxItems {
			break
		}
		rec := d.extractOne(el, fields)
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (d *Driver) extractOne(el *rod.Element, fields map[string]string) map[string]any {
	if len(fields) == 0 {
		text, err := el.Text()
		if err != nil || strings.TrimSpace(text) == "" {
			return nil
		}
		return map[string]any{"text": d.clean(text)}
	}

	rec := make(map[string]any, len(fields))
	for name, sub := range fields {
		if v := d.fieldValue(el, sub); v != "" {
			rec[name] = v
		}
	}
	return rec
}

// fieldValue resolves one sub-selector against a record element. "" means
// the element's own text, "@href" its own attribute, "a.title@href" an
// attribute of a descendant.
func (d *Driver) fieldValue(el *rod.Element, sub string) string {
	sel, attr, _ := strings.Cut(sub, "@")

	node := el
	if sel != "" {
		found, err := el.Element(sel)
		if err != nil {
			return ""
		}
		node = found
	}
	if attr != "" {
		v, err := node.Attribute(attr)
		if err != nil || v == nil {
			return ""
		}
		return d.clean(*v)
	}
	text, err := node.Text()
	if err != nil {
		return ""
	}
	return d.clean(text)
}

// FillForm fills each selector with its value. The reserved "@submit" key
// names a selector to click after filling; without it the form is never
// submitted.
func (d *Driver) FillForm(ctx context.Context, target string, fields map[string]string) (*resolve.FormOutcome, error) {
	page, err := d.openPage(ctx, target)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	submitSel := fields["@submit"]
	out := &resolve.FormOutcome{}
	for sel, value := range fields {
		if sel == "@submit" {
			continue
		}
		el, err := page.Context(ctx).Element(sel)
		if err != nil {
			d.cfg.Logger.Warn("driver: form field not found", "selector", sel, "error", err)
			continue
		}
		if err := el.Input(value); err != nil {
			d.cfg.Logger.Warn("driver: form input failed", "selector", sel, "error", err)
			continue
		}
		out.FieldsFilled = append(out.FieldsFilled, sel)
	}

	if submitSel != "" && len(out.FieldsFilled) > 0 {
		btn, err := page.Context(ctx).Element(submitSel)
		if err != nil {
			return out, fmt.Errorf("driver: submit element %q: %w", submitSel, err)
		}
		if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return out, fmt.Errorf("driver: submit click: %w", err)
		}
		out.Submitted = true
	}
	return out, nil
}

// PageHTML navigates to target and returns the rendered document markup.
// This is the one path that intentionally bypasses sanitization: the
// candidate finder needs real structure, not stripped text.
func (d *Driver) PageHTML(ctx context.Context, target string) (string, error) {
	page, err := d.openPage(ctx, target)
	if err != nil {
		return "", err
	}
	defer page.Close()
	return page.Context(ctx).HTML()
}

func (d *Driver) openPage(ctx context.Context, target string) (*rod.Page, error) {
	d.mu.RLock()
	b := d.browser
	d.mu.RUnlock()
	if b == nil {
		return nil, fmt.Errorf("driver: not started")
	}

	var page *rod.Page
	var err error
	if d.cfg.SkipStealth {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	} else {
		page, err = stealth.Page(b)
	}
	if err != nil {
		return nil, fmt.Errorf("driver: create page: %w", err)
	}

	if len(d.cfg.BlockResources) > 0 {
		d.blockResources(page)
	}

	navCtx, cancel := context.WithTimeout(ctx, d.cfg.NavTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(target); err != nil {
		page.Close()
		return nil, fmt.Errorf("driver: navigate %s: %w", target, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		d.cfg.Logger.Warn("driver: wait load timeout", "url", target, "error", err)
	}
	return page, nil
}

// clean strips markup, unescapes entities, and collapses whitespace.
func (d *Driver) clean(s string) string {
	s = d.sanitizer.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
