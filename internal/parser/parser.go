// Package parser extracts outgoing references from HTML pages.
package parser

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// skippedSchemes are reference schemes that never point at a fetchable page.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// Parser extracts information from HTML content.
// It resolves every reference against the page address, or against the
// document's <base href> when one is present.
type Parser struct {
	// baseURL is the address of the page being parsed.
	baseURL *url.URL
}

// ParseResult contains the information extracted from an HTML page.
type ParseResult struct {
	// Links contains the absolute addresses referenced by the page, in
	// document order, without fragments and without duplicates.
	Links []string
}

// NewParser creates a parser for the page at baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content and extracts its references.
// Malformed markup is tolerated the way browsers tolerate it.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	// <base href> changes resolution for the whole document, so find it first.
	base := p.baseURL
	if href := findBase(doc); href != "" {
		if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = p.baseURL.ResolveReference(u)
		}
	}

	c := &collector{
		base:   base,
		seen:   make(map[string]struct{}),
		result: &ParseResult{Links: make([]string, 0)},
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			c.element(n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return c.result, nil
}

// collector accumulates a ParseResult during one walk.
type collector struct {
	base   *url.URL
	seen   map[string]struct{}
	result *ParseResult
}

func (c *collector) element(n *html.Node) {
	switch n.Data {
	case "a", "area", "link":
		c.add(getAttr(n, "href"))
	case "iframe", "frame":
		c.add(getAttr(n, "src"))
	}
}

func (c *collector) add(ref string) {
	resolved := resolveURL(c.base, ref)
	if resolved == "" {
		return
	}
	if _, ok := c.seen[resolved]; ok {
		return
	}
	c.seen[resolved] = struct{}{}
	c.result.Links = append(c.result.Links, resolved)
}

// resolveURL resolves href against base and drops the fragment.
// It returns "" for references that cannot be fetched.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(u)
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String()
}

// findBase returns the href of the first <base> element.
func findBase(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "base" {
		if href := getAttr(n, "href"); href != "" {
			return href
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if href := findBase(child); href != "" {
			return href
		}
	}
	return ""
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
