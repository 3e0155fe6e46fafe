package crawler

import (
	"net/url"
	"strings"

	"github.com/user/post-scraper/internal/domain"
	"github.com/user/post-scraper/pkg/utils"
)

// bodySeparator joins the text of body nodes.
const bodySeparator = "\n\n"

// ExtractLinks returns one URL per node matching linkSelector, in document
// order. Each URL is baseURL followed by the node's raw href; nothing is
// normalized or de-duplicated. A node without an href yields baseURL.
func ExtractLinks(doc Document, linkSelector, baseURL string) []string {
	nodes := doc.SelectAll(linkSelector)
	links := make([]string, 0, len(nodes))
	for _, n := range nodes {
		href, _ := n.Attr("href")
		links = append(links, baseURL+href)
	}
	return links
}

// ExtractResolvedLinks is ExtractLinks with RFC 3986 reference resolution
// in place of concatenation, so absolute and relative hrefs both come out
// right. An href that does not parse falls back to concatenation.
func ExtractResolvedLinks(doc Document, linkSelector, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ExtractLinks(doc, linkSelector, baseURL)
	}
	nodes := doc.SelectAll(linkSelector)
	links := make([]string, 0, len(nodes))
	for _, n := range nodes {
		href, _ := n.Attr("href")
		abs, err := utils.ResolveLink(base, href)
		if err != nil {
			abs = baseURL + href
		}
		links = append(links, abs)
	}
	return links
}

// ParsePost builds a record from a post page. The title selector must match;
// the body selector may match nothing, which gives an empty body.
func ParsePost(doc Document, titleSelector, bodySelector, pageURL string) (domain.PostRecord, error) {
	title, ok := doc.SelectOne(titleSelector)
	if !ok {
		return domain.PostRecord{}, &domain.ParseError{URL: pageURL, Reason: domain.ReasonTitleNotFound}
	}

	nodes := doc.SelectAll(bodySelector)
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		parts = append(parts, strings.TrimSpace(n.Text()))
	}

	return domain.PostRecord{
		Title: strings.TrimSpace(title.Text()),
		Body:  strings.Join(parts, bodySeparator),
		URL:   pageURL,
	}, nil
}
