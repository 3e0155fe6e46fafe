package utils

import (
	"net/url"
	"strings"
)

// ResolveLink resolves an href found on a page against that page's base
// URL. Surrounding whitespace and any fragment are dropped, so "#comments"
// variants of a post resolve to the post itself.
func ResolveLink(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String(), nil
}
