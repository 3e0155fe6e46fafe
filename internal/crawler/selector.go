package crawler

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

// Node is a single matched element. *goquery.Selection satisfies it.
type Node interface {
	Text() string
	Attr(name string) (string, bool)
}

// Document answers selector queries against parsed markup.
type Document interface {
	// SelectOne returns the first match in document order.
	SelectOne(selector string) (Node, bool)
	// SelectAll returns every match in document order.
	SelectAll(selector string) []Node
}

type goqueryDocument struct {
	doc *goquery.Document
}

// ParseDocument parses an HTML body.
func ParseDocument(body []byte) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &goqueryDocument{doc: doc}, nil
}

func (d *goqueryDocument) SelectOne(selector string) (Node, bool) {
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return sel, true
}

func (d *goqueryDocument) SelectAll(selector string) []Node {
	var nodes []Node
	d.doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		nodes = append(nodes, s)
	})
	return nodes
}
