// Package extract pulls the visible main-body text out of an HTML page.
//
// Extraction is intentionally simple: walk the parse tree, skip chrome
// elements and non-visible content, and normalize whitespace. Rule windows
// are measured in characters of this extracted text, so extraction must be
// deterministic for a given input.
package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// skippedElements are elements whose entire subtree is excluded from the
// extracted text. Navigation and boilerplate chrome would otherwise dominate
// proximity windows on heavily templated pages.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"svg":      true,
	"iframe":   true,
}

// Text extracts the visible main-body text from an HTML document. Malformed
// HTML is handled leniently by the parser; extraction never fails, at worst
// it returns an empty string.
func Text(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var sb strings.Builder

	collectText(doc, &sb)

	return normalizeWhitespace(sb.String())
}

// Title returns the content of the document's <title> element, or an empty
// string if there is none.
func Title(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	title := findTitle(doc)

	return normalizeWhitespace(title)
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.ElementNode:
		if skippedElements[n.Data] {
			return
		}
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteByte(' ')

		return
	case html.CommentNode, html.DoctypeNode:
		return
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}

	// Block elements separate words even without whitespace in the markup.
	if n.Type == html.ElementNode {
		sb.WriteByte(' ')
	}
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		var sb strings.Builder
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode {
				sb.WriteString(child.Data)
			}
		}

		return sb.String()
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if title := findTitle(child); title != "" {
			return title
		}
	}

	return ""
}

// normalizeWhitespace collapses all whitespace runs to single spaces and
// trims the ends. Window distances are measured on the normalized text.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
