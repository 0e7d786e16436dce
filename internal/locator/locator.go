// Package locator derives reusable structural descriptors for clicked
// elements and resolves them again on later pages. A mapping deliberately
// carries several redundant locators (CSS selector, absolute XPath, parent
// plus child position) so re-extraction can survive small structural drift.
package locator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/menucollect/clipper/internal/extract"
	"github.com/menucollect/clipper/pkg/models"
	"golang.org/x/net/html"
)

// sampleValueLimit caps the stored preview of the element's content.
const sampleValueLimit = 100

// maxSelectorClasses bounds how many classes go into a class-based selector.
const maxSelectorClasses = 3

// transientClassRe matches styling classes that come and go with UI state,
// including our own injected ones; baking them into a stored selector would
// make it useless on the next visit.
var transientClassRe = regexp.MustCompile(`(?i)^(hover|active|focus|selected|template|clipper)`)

// Build derives a FieldMapping for the element behind sel.
func Build(field models.Field, sel *goquery.Selection) models.FieldMapping {
	m := models.FieldMapping{Field: field}
	if sel == nil || sel.Length() == 0 {
		return m
	}
	node := sel.Nodes[0]

	m.TagName = strings.ToLower(node.Data)
	m.ClassName = attr(node, "class")
	m.Selector = selectorFor(node)
	m.XPath = xpathFor(node)

	if parent := elementParent(node); parent != nil && strings.ToLower(parent.Data) != "body" {
		m.ParentSelector = selectorFor(parent)
	}
	m.RelativePosition = childPosition(node)
	m.SampleValue = truncate(sampleValue(field, sel), sampleValueLimit)
	return m
}

// selectorFor builds a CSS selector for a single element: an id wins
// outright; otherwise tag plus up to three stable classes, disambiguated
// with :nth-of-type when same-tag siblings exist.
func selectorFor(n *html.Node) string {
	if id := attr(n, "id"); id != "" {
		return "#" + id
	}

	sel := strings.ToLower(n.Data)
	count := 0
	for _, class := range strings.Fields(attr(n, "class")) {
		if transientClassRe.MatchString(class) {
			continue
		}
		sel += "." + class
		count++
		if count == maxSelectorClasses {
			break
		}
	}

	if total, index := sameTagPosition(n); total > 1 {
		sel += fmt.Sprintf(":nth-of-type(%d)", index)
	}
	return sel
}

// xpathFor builds an absolute XPath from the document root. Each segment is
// tagname[index] where index counts same-tag siblings, 1-based and omitted
// when the element is the only one of its tag.
func xpathFor(n *html.Node) string {
	var segments []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = elementParent(cur) {
		seg := strings.ToLower(cur.Data)
		if total, index := sameTagPosition(cur); total > 1 {
			seg += fmt.Sprintf("[%d]", index)
		}
		segments = append([]string{seg}, segments...)
	}
	return "/" + strings.Join(segments, "/")
}

// sameTagPosition returns how many same-tag element siblings exist (self
// included) and this element's 1-based position among them.
func sameTagPosition(n *html.Node) (total, index int) {
	parent := n.Parent
	if parent == nil {
		return 1, 1
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != n.Data {
			continue
		}
		total++
		if c == n {
			index = total
		}
	}
	if total == 0 {
		total, index = 1, 1
	}
	return total, index
}

// childPosition returns the zero-based index of n among its parent's
// element children.
func childPosition(n *html.Node) int {
	parent := n.Parent
	if parent == nil {
		return 0
	}
	pos := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c == n {
			return pos
		}
		pos++
	}
	return 0
}

func elementParent(n *html.Node) *html.Node {
	p := n.Parent
	if p != nil && p.Type == html.ElementNode {
		return p
	}
	return nil
}

// sampleValue captures a field-appropriate preview of the element content.
// Image fields read source attributes; everything else reads trimmed text.
func sampleValue(field models.Field, sel *goquery.Selection) string {
	if field == models.FieldImage {
		return extract.ImageURL(sel)
	}
	return extract.DeepText(sel)
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
