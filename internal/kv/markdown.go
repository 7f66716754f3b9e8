// Package kv holds the profile key-value store and the conversion of
// markdown documents into key-value records.
package kv

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Record is one key-value pair, in the bulk format accepted by Workers KV.
type Record struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Options controls how a markdown document is split into records.
type Options struct {
	// Level is the heading depth that starts a section (1-6, default 2).
	Level int
	// Flatten emits one record per heading at or below Level with path keys
	// (parent/child) and only that heading's own content.
	Flatten bool
	// NoSlug keeps heading titles verbatim in keys.
	NoSlug bool
	// Prefix is prepended to every key as "prefix/".
	Prefix string
}

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*$`)
	nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)
)

type node struct {
	level    int
	title    string
	lines    []string
	children []*node
}

// content is the node's own text with trailing blank lines removed.
func (n *node) content() string {
	lines := n.lines
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// parse builds a heading tree under a virtual level-0 root.
func parse(md string) *node {
	md = strings.ReplaceAll(md, "\r\n", "\n")
	root := &node{level: 0, title: "ROOT"}
	stack := []*node{root}
	for _, line := range strings.Split(md, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			for len(stack) > 1 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			n := &node{level: level, title: strings.TrimSpace(m[2])}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			stack = append(stack, n)
			continue
		}
		top := stack[len(stack)-1]
		top.lines = append(top.lines, line)
	}
	return root
}

// withChildren renders a node's own content followed by its sub-sections
// with their headings restored.
func (n *node) withChildren() string {
	var parts []string
	if own := strings.TrimSpace(n.content()); own != "" {
		parts = append(parts, own)
	}
	for _, c := range n.children {
		block := strings.Repeat("#", c.level) + " " + c.title
		if body := c.withChildren(); body != "" {
			block += "\n" + body
		}
		parts = append(parts, strings.TrimSpace(block))
	}
	return strings.Join(parts, "\n\n")
}

type section struct {
	path    []string
	content string
}

func topLevel(root *node, level int) []section {
	var out []section
	var walk func(*node)
	walk = func(n *node) {
		for _, c := range n.children {
			if c.level == level {
				out = append(out, section{path: []string{c.title}, content: c.withChildren()})
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func flatten(root *node, start int) []section {
	var out []section
	titles := map[int]string{}
	var walk func(*node)
	walk = func(n *node) {
		if n.level >= start {
			titles[n.level] = n.title
			levels := make([]int, 0, len(titles))
			for lvl := range titles {
				if lvl >= start {
					levels = append(levels, lvl)
				}
			}
			sort.Ints(levels)
			path := make([]string, 0, len(levels))
			for _, lvl := range levels {
				path = append(path, titles[lvl])
			}
			out = append(out, section{path: path, content: strings.TrimSpace(n.content())})
		}
		for _, c := range n.children {
			walk(c)
		}
		delete(titles, n.level)
	}
	walk(root)
	return out
}

// Slugify lowercases s, folds accents and collapses every run of characters
// outside [a-z0-9] into a single underscore.
func Slugify(s string) string {
	// Chained transformers carry state, so each call builds its own.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	out := strings.ToLower(strings.TrimSpace(folded))
	out = nonSlugRe.ReplaceAllString(out, "_")
	return strings.Trim(out, "_")
}

// Convert splits a markdown document into records.
func Convert(md string, opts Options) []Record {
	level := opts.Level
	if level < 1 || level > 6 {
		level = 2
	}
	root := parse(md)

	var sections []section
	if opts.Flatten {
		for _, s := range flatten(root, level) {
			if strings.TrimSpace(s.content) != "" {
				sections = append(sections, s)
			}
		}
	} else {
		sections = topLevel(root, level)
	}

	records := make([]Record, 0, len(sections))
	for _, s := range sections {
		records = append(records, Record{Key: keyFor(s.path, opts), Value: s.content})
	}
	return records
}

func keyFor(path []string, opts Options) string {
	parts := make([]string, 0, len(path))
	for _, t := range path {
		if strings.TrimSpace(t) == "" {
			continue
		}
		if opts.NoSlug {
			parts = append(parts, t)
		} else {
			parts = append(parts, Slugify(t))
		}
	}
	key := strings.Join(parts, "/")
	if opts.Prefix != "" {
		key = strings.TrimRight(opts.Prefix, "/") + "/" + key
	}
	return key
}
