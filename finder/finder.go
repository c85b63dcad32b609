// CLAUDE:SUMMARY Statistical candidate finder: repeated-structure detection with link/price/image metrics.
// Package finder proposes container selectors for record extraction by
// statistical DOM analysis: it looks for groups of sibling elements sharing
// a tag+class signature and scores each group on repetition count, text
// volume, and link/price/image ratios. Candidates come back ordered by the
// finder's own score; callers consume the order as-is.
package finder

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Candidate is one proposed container selector with structural metrics.
type Candidate struct {
	Selector   string  `json:"selector"`
	Count      int     `json:"count"`
	LinkRatio  float64 `json:"link_ratio"`  // fraction of items containing a link
	PriceRatio float64 `json:"price_ratio"` // fraction of items with price-like text
	ImageRatio float64 `json:"image_ratio"` // fraction of items containing an image
	AvgTextLen int     `json:"avg_text_len"`
	score      float64
}

// Hints bias candidate scoring toward the task at hand.
type Hints struct {
	Task           string
	ExpectedFields []string
	MinCount       int // minimum group size to consider, default 3
}

var priceRe = regexp.MustCompile(`[$€£¥]\s*\d[\d,.]*|\d[\d,.]*\s*(?:€|USD|EUR|GBP)`)

// Boilerplate containers never proposed as record groups.
var skipTags = map[atom.Atom]bool{
	atom.Nav: true, atom.Footer: true, atom.Header: true, atom.Aside: true,
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Form: true,
}

// FindCandidates analyses a parsed document and returns scored container
// candidates, best first.
func FindCandidates(doc *html.Node, hints Hints) []Candidate {
	minCount := hints.MinCount
	if minCount < 2 {
		minCount = 3
	}

	var candidates []Candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.DataAtom] {
			return
		}
		if n.Type == html.ElementNode || n.Type == html.DocumentNode {
			for _, group := range groupChildren(n) {
				if len(group.nodes) < minCount {
					continue
				}
				candidates = append(candidates, measure(group, hints))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return candidates
}

// childGroup is a run of sibling elements sharing a selector signature.
type childGroup struct {
	selector string
	nodes    []*html.Node
}

// groupChildren buckets an element's children by tag+class signature.
func groupChildren(parent *html.Node) []childGroup {
	buckets := make(map[string][]*html.Node)
	var order []string
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || skipTags[c.DataAtom] {
			continue
		}
		sig := signature(c)
		if sig == "" {
			continue
		}
		if _, ok := buckets[sig]; !ok {
			order = append(order, sig)
		}
		buckets[sig] = append(buckets[sig], c)
	}

	groups := make([]childGroup, 0, len(order))
	for _, sig := range order {
		groups = append(groups, childGroup{selector: sig, nodes: buckets[sig]})
	}
	return groups
}

// signature builds a simple CSS selector for an element: tag plus its first
// class, e.g. "div.product-card". Elements without tag or class still get
// the bare tag for structural tags like li and tr.
func signature(n *html.Node) string {
	tag := n.Data
	if tag == "" {
		return ""
	}
	classes := strings.Fields(attr(n, "class"))
	if len(classes) > 0 {
		return tag + "." + classes[0]
	}
	switch n.DataAtom {
	case atom.Li, atom.Tr, atom.Article, atom.Section:
		return tag
	}
	return ""
}

// measure computes the structural metrics and internal score for a group.
func measure(g childGroup, hints Hints) Candidate {
	c := Candidate{Selector: g.selector, Count: len(g.nodes)}

	var withLink, withPrice, withImage, totalText int
	for _, n := range g.nodes {
		text := collectText(n)
		totalText += len(text)
		if hasDescendant(n, atom.A) {
			withLink++
		}
		if hasDescendant(n, atom.Img) {
			withImage++
		}
		if priceRe.MatchString(text) {
			withPrice++
		}
	}
	n := float64(len(g.nodes))
	c.LinkRatio = float64(withLink) / n
	c.PriceRatio = float64(withPrice) / n
	c.ImageRatio = float64(withImage) / n
	c.AvgTextLen = totalText / len(g.nodes)

	// Repetition and text volume dominate; task hints tilt the balance.
	c.score = logScale(c.Count) * logScale(c.AvgTextLen)
	switch hints.Task {
	case "extract_products":
		c.score *= 1 + 2*c.PriceRatio + c.ImageRatio
	case "extract_links":
		c.score *= 1 + 2*c.LinkRatio
	default:
		c.score *= 1 + c.LinkRatio*0.2
	}
	// Groups that are pure navigation score down.
	if c.AvgTextLen < 10 {
		c.score *= 0.3
	}
	return c
}

func hasDescendant(n *html.Node, tag atom.Atom) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == tag {
			return true
		}
		if hasDescendant(c, tag) {
			return true
		}
	}
	return false
}

// collectText gathers trimmed text content of a subtree.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// logScale grows slowly with n so huge values don't dominate.
func logScale(n int) float64 {
	if n <= 0 {
		return 0
	}
	scale := 1.0
	for v := n; v > 4; v /= 2 {
		scale++
	}
	return scale
}
