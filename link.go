package authkit

import (
	"net/url"
	"strings"
)

// URLLinkBuilder joins paths onto a base URL.
type URLLinkBuilder struct {
	BaseURL string
}

var _ LinkBuilder = URLLinkBuilder{}

// NewLinkBuilder returns a LinkBuilder rooted at base, e.g. "https://example.com".
func NewLinkBuilder(base string) URLLinkBuilder {
	return URLLinkBuilder{BaseURL: strings.TrimRight(base, "/")}
}

// Build implements LinkBuilder
func (b URLLinkBuilder) Build(path string, query url.Values) string {
	link := b.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		link += "?" + query.Encode()
	}
	return link
}
