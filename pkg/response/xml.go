package response

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// newXML builds an html.Node tree from the XML token stream so XML
// documents can be queried with the same CSS engine as HTML. Element and
// attribute names are lower-cased and namespace prefixes dropped, which is
// what the selector engine expects.
func newXML(b base) *domAdapter {
	root, err := parseXML(b.raw.Body)
	if err != nil {
		b.rec.Fail("XML body could not be parsed: " + err.Error())
	}
	return &domAdapter{base: b, doc: goquery.NewDocumentFromNode(root)}
}

func parseXML(body []byte) (*html.Node, error) {
	doc := &html.Node{Type: html.DocumentNode}
	if len(bytes.TrimSpace(body)) == 0 {
		return doc, errors.New("empty document")
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	current := doc
	sawElement := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return doc, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			sawElement = true
			n := &html.Node{Type: html.ElementNode, Data: strings.ToLower(t.Name.Local)}
			for _, attr := range t.Attr {
				if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
					continue
				}
				n.Attr = append(n.Attr, html.Attribute{Key: strings.ToLower(attr.Name.Local), Val: attr.Value})
			}
			current.AppendChild(n)
			current = n
		case xml.EndElement:
			if current.Parent != nil {
				current = current.Parent
			}
		case xml.CharData:
			if current == doc {
				continue
			}
			current.AppendChild(&html.Node{Type: html.TextNode, Data: string(t)})
		case xml.Comment:
			current.AppendChild(&html.Node{Type: html.CommentNode, Data: string(t)})
		}
	}
	if !sawElement {
		return doc, errors.New("no root element")
	}
	return doc, nil
}
