// Package extract turns a selected DOM element into a typed field value.
//
// The same heuristics run in two places: the guest script applies them live
// inside the page, and this package applies them host-side when a stored
// template is re-run against a fetched document. Extraction never returns an
// error; the selection session must always get some value, so every failure
// path degrades to a simpler accessor.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/menucollect/clipper/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// Result is a raw extracted value. Currency is only set by the price
// strategy; URL values are not resolved against a base here.
type Result struct {
	Value    string
	Currency string
}

type strategy func(sel *goquery.Selection) Result

// strategies maps field kinds to their extraction behavior. Unknown fields
// fall through to deep text.
var strategies = map[models.Field]strategy{
	models.FieldImage:    extractImage,
	models.FieldPrice:    extractPrice,
	models.FieldCurrency: extractCurrency,
}

// Extract produces the value for field from the given element. The element
// comes from an uncontrolled document, so every DOM read is guarded; a
// panicking traversal falls back to goquery's plain text accessor.
func Extract(field models.Field, sel *goquery.Selection) Result {
	if sel == nil || sel.Length() == 0 {
		return Result{}
	}
	fn, ok := strategies[field]
	if !ok {
		fn = extractText
	}
	return fn(sel)
}

func extractText(sel *goquery.Selection) Result {
	return Result{Value: DeepText(sel)}
}

func extractPrice(sel *goquery.Selection) Result {
	currency, amount := SplitPrice(DeepText(sel))
	return Result{Value: amount, Currency: currency}
}

func extractCurrency(sel *goquery.Selection) Result {
	currency, _ := SplitPrice(DeepText(sel))
	return Result{Value: currency}
}

// DeepText walks every text node under the selection, skipping script,
// style, and noscript subtrees, and returns the concatenated content with
// whitespace collapsed. Falls back to Selection.Text if the walk yields
// nothing or the node tree misbehaves.
func DeepText(sel *goquery.Selection) string {
	text := func() string {
		defer func() {
			// A detached or page-mutated node can make traversal panic;
			// recover and let the fallback below run.
			if r := recover(); r != nil {
				log.Warn().Interface("panic", r).Msg("Deep text walk failed")
			}
		}()
		var b strings.Builder
		for _, node := range sel.Nodes {
			collectText(node, &b)
		}
		return b.String()
	}()

	text = collapseWhitespace(text)
	if text != "" {
		return text
	}

	// Degraded path: goquery's text includes script/style content but is
	// better than nothing. Form controls carry their content in value.
	if v, ok := sel.Attr("value"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return collapseWhitespace(sel.Text())
}

func collectText(n *html.Node, b *strings.Builder) {
	if n == nil {
		return
	}
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript":
			return
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
