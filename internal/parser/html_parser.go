// Package parser extracts readable text from the HTML and LaTeX-flavoured
// markup that appears in abstracts and dataset descriptions of the dumps.
package parser

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TextParser converts markup fragments to plain text
type TextParser struct {
	// Block elements get a separating space so words from adjacent
	// paragraphs do not run together.
	blockElements map[string]bool
	skipElements  map[string]bool
}

// NewTextParser creates a parser with the default element sets
func NewTextParser() *TextParser {
	return &TextParser{
		blockElements: map[string]bool{
			"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
			"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
			"tr": true, "td": true, "th": true, "table": true, "blockquote": true,
		},
		skipElements: map[string]bool{
			"script": true, "style": true, "head": true, "noscript": true,
		},
	}
}

// HasMarkup reports whether s looks like it contains HTML tags or entities.
func HasMarkup(s string) bool {
	lt := strings.IndexByte(s, '<')
	if lt >= 0 && strings.IndexByte(s[lt:], '>') > 0 {
		return true
	}
	amp := strings.IndexByte(s, '&')
	return amp >= 0 && strings.IndexByte(s[amp:], ';') > 0
}

// Text returns the text content of fragment with whitespace collapsed.
// Fragments without markup are only whitespace-collapsed.
func (p *TextParser) Text(fragment string) string {
	if !HasMarkup(fragment) {
		return CollapseSpace(fragment)
	}

	// The context node needs its atom set, ParseFragment rejects a bare "body"
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return CollapseSpace(fragment)
	}

	var sb strings.Builder
	for _, n := range nodes {
		p.traverse(n, &sb)
	}
	return CollapseSpace(sb.String())
}

// traverse recursively walks the HTML tree
func (p *TextParser) traverse(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if p.skipElements[n.Data] {
			return
		}
		if p.blockElements[n.Data] {
			sb.WriteByte(' ')
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.traverse(c, sb)
	}

	if n.Type == html.ElementNode && p.blockElements[n.Data] {
		sb.WriteByte(' ')
	}
}

// CollapseSpace trims s and replaces every whitespace run with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
