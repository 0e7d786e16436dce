package locator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/menucollect/clipper/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// Method names returned by Resolve for logging and confidence reporting.
const (
	MethodSelector = "selector"
	MethodXPath    = "xpath"
	MethodPosition = "position"
)

// Resolve finds the element a mapping points at inside doc, trying the CSS
// selector first, then the absolute XPath, then the parent selector plus
// child position. Returns the matched selection and which method hit, or an
// error when every locator misses.
func Resolve(doc *goquery.Document, m models.FieldMapping) (*goquery.Selection, string, error) {
	if doc == nil {
		return nil, "", fmt.Errorf("nil document")
	}

	if m.Selector != "" {
		if sel := doc.Find(m.Selector).First(); sel.Length() > 0 {
			return sel, MethodSelector, nil
		}
		log.Debug().Str("selector", m.Selector).Str("field", string(m.Field)).Msg("Selector missed, trying xpath")
	}

	if m.XPath != "" {
		if node := resolveXPath(doc, m.XPath); node != nil {
			return newSelection(doc, node), MethodXPath, nil
		}
		log.Debug().Str("xpath", m.XPath).Str("field", string(m.Field)).Msg("XPath missed, trying position")
	}

	if m.ParentSelector != "" {
		parent := doc.Find(m.ParentSelector).First()
		if parent.Length() > 0 {
			child := parent.Children().Eq(m.RelativePosition)
			if child.Length() > 0 && (m.TagName == "" || goquery.NodeName(child) == m.TagName) {
				return child, MethodPosition, nil
			}
		}
	}

	return nil, "", fmt.Errorf("no locator matched for field %q (selector %q)", m.Field, m.Selector)
}

// resolveXPath walks an absolute path of the shape this package generates:
// /html/body/div[2]/span. It is not a general XPath engine; mappings only
// ever carry paths produced by xpathFor.
func resolveXPath(doc *goquery.Document, xpath string) *html.Node {
	if !strings.HasPrefix(xpath, "/") {
		return nil
	}

	var root *html.Node
	for _, n := range doc.Selection.Nodes {
		root = documentElement(n)
		if root != nil {
			break
		}
	}
	if root == nil {
		return nil
	}

	segments := strings.Split(strings.TrimPrefix(xpath, "/"), "/")
	if len(segments) == 0 {
		return nil
	}

	// First segment must name the root element (html).
	tag, index, ok := parseSegment(segments[0])
	if !ok || tag != strings.ToLower(root.Data) || index != 1 {
		return nil
	}

	cur := root
	for _, seg := range segments[1:] {
		tag, index, ok := parseSegment(seg)
		if !ok {
			return nil
		}
		cur = childByTagIndex(cur, tag, index)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// parseSegment splits "div[2]" into ("div", 2); a bare "div" means index 1.
func parseSegment(seg string) (tag string, index int, ok bool) {
	seg = strings.TrimSpace(seg)
	if seg == "" {
		return "", 0, false
	}
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return strings.ToLower(seg), 1, true
	}
	if !strings.HasSuffix(seg, "]") {
		return "", 0, false
	}
	n, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return strings.ToLower(seg[:open]), n, true
}

func childByTagIndex(parent *html.Node, tag string, index int) *html.Node {
	count := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || strings.ToLower(c.Data) != tag {
			continue
		}
		count++
		if count == index {
			return c
		}
	}
	return nil
}

func documentElement(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && strings.ToLower(n.Data) == "html" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := documentElement(c); found != nil {
			return found
		}
	}
	return nil
}

func newSelection(doc *goquery.Document, n *html.Node) *goquery.Selection {
	return doc.FindNodes(n)
}
