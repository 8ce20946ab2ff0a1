package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"strings"
	"time"

	"github.com/nao1215/levelcrawl/internal/parser"
)

// Page is a fetched document.
//
// Page implements crawler.Document: ExtractLinks parses the body and returns
// the addresses it references. Non-HTML pages have no links.
type Page struct {
	// URL is the address the page was requested with.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains the HTTP response headers in canonical form.
	Headers map[string][]string `json:"headers,omitempty"`

	// ContentType is the media type of the body, without parameters.
	ContentType string `json:"content_type"`

	// Raw is the decoded, UTF-8 body, cut at the fetcher's body size limit.
	Raw []byte `json:"-"`

	// Hash is the SHA-256 hash of Raw.
	Hash string `json:"hash"`

	// FetchedAt is when the page was downloaded from the network.
	FetchedAt time.Time `json:"fetched_at"`

	// FromCache is true when the page was served by the page cache.
	FromCache bool `json:"from_cache"`
}

// ExtractLinks returns the absolute addresses referenced by the page.
func (p *Page) ExtractLinks() ([]string, error) {
	if !p.IsHTML() {
		return nil, nil
	}

	ps, err := parser.NewParser(p.URL)
	if err != nil {
		return nil, err
	}
	result, err := ps.Parse(bytes.NewReader(p.Raw))
	if err != nil {
		return nil, err
	}
	return result.Links, nil
}

// ComputeHash calculates and sets the SHA-256 hash of the page's raw content.
// This should be called after setting the Raw field.
func (p *Page) ComputeHash() {
	if len(p.Raw) == 0 {
		p.Hash = ""
		return
	}

	hash := sha256.Sum256(p.Raw)
	p.Hash = hex.EncodeToString(hash[:])
}

// IsHTML returns true if the page content type indicates HTML.
// A page without a content type is sniffed as HTML, the way browsers do
// for pages served without one.
func (p *Page) IsHTML() bool {
	switch p.ContentType {
	case "text/html", "application/xhtml+xml", "":
		return true
	default:
		return false
	}
}

// MediaType returns the media type of a Content-Type header value, lower
// cased and without parameters. It returns "" for an empty or invalid value.
func MediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Fall back to the part before the first parameter.
		mt, _, _ = strings.Cut(contentType, ";")
		return strings.ToLower(strings.TrimSpace(mt))
	}
	return mt
}
