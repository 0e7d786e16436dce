// Package template re-extracts items from pages using saved field mappings,
// without a browser session or an operator.
package template

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/menucollect/clipper/internal/dedupe"
	"github.com/menucollect/clipper/internal/extract"
	"github.com/menucollect/clipper/internal/locator"
	urlutil "github.com/menucollect/clipper/internal/utils/url"
	"github.com/menucollect/clipper/pkg/models"
)

// FieldReport records how one mapping resolved during an apply run.
type FieldReport struct {
	Field  models.Field
	Method string
	Value  string
	Err    error
}

// Result is the outcome of applying a template to one page.
type Result struct {
	Item      *models.Item
	Reports   []FieldReport
	Duplicate bool
}

// Apply resolves every mapping of tpl against doc and assembles an item.
// Individual fields that no locator can find are reported, not fatal; the
// run only fails when nothing resolves at all.
func Apply(doc *goquery.Document, tpl *models.Template, pageURL string, titles *dedupe.TitleSet) (*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	if tpl == nil || len(tpl.Fields) == 0 {
		return nil, fmt.Errorf("template has no field mappings")
	}

	item := &models.Item{PageURL: pageURL}
	reports := make([]FieldReport, 0, len(tpl.Fields))
	resolved := 0

	for _, m := range tpl.Fields {
		sel, method, err := locator.Resolve(doc, m)
		if err != nil {
			log.Debug().
				Str("template", tpl.Name).
				Str("field", string(m.Field)).
				Err(err).
				Msg("Mapping did not resolve")
			reports = append(reports, FieldReport{Field: m.Field, Err: err})
			continue
		}
		resolved++
		res := extract.Extract(m.Field, sel)
		item.SetField(m.Field, res.Value)
		if m.Field == models.FieldPrice && res.Currency != "" {
			if _, hasCurrency := tpl.Mapping(models.FieldCurrency); !hasCurrency {
				item.SetField(models.FieldCurrency, res.Currency)
			}
		}
		reports = append(reports, FieldReport{Field: m.Field, Method: method, Value: res.Value})
	}

	if resolved == 0 {
		return nil, fmt.Errorf("template %q matched nothing on %s", tpl.Name, pageURL)
	}

	urlutil.AbsolutizeItem(item)
	out := &Result{Item: item, Reports: reports}
	if titles != nil && item.Title != "" {
		out.Duplicate = titles.Contains(item.Title)
	}
	return out, nil
}

// ApplyAll expands tpl across every card on the page that shares the
// template's parent structure, returning one result per card. Pages that
// repeat an item layout (a grid of dishes) yield all of them from a single
// captured sample.
func ApplyAll(doc *goquery.Document, tpl *models.Template, pageURL string, titles *dedupe.TitleSet) ([]*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	if tpl == nil || len(tpl.Fields) == 0 {
		return nil, fmt.Errorf("template has no field mappings")
	}

	parentSel := cardSelector(tpl)
	if parentSel == "" {
		res, err := Apply(doc, tpl, pageURL, titles)
		if err != nil {
			return nil, err
		}
		return []*Result{res}, nil
	}

	cards := doc.Find(parentSel)
	if cards.Length() == 0 {
		// Structure drifted; fall back to the single-item chain.
		res, err := Apply(doc, tpl, pageURL, titles)
		if err != nil {
			return nil, err
		}
		return []*Result{res}, nil
	}

	var results []*Result
	cards.Each(func(i int, card *goquery.Selection) {
		item := &models.Item{PageURL: pageURL}
		reports := make([]FieldReport, 0, len(tpl.Fields))
		resolved := 0

		for _, m := range tpl.Fields {
			sel := fieldInCard(card, m)
			if sel == nil {
				reports = append(reports, FieldReport{
					Field: m.Field,
					Err:   fmt.Errorf("no element at position %d in card %d", m.RelativePosition, i),
				})
				continue
			}
			resolved++
			res := extract.Extract(m.Field, sel)
			item.SetField(m.Field, res.Value)
			if m.Field == models.FieldPrice && res.Currency != "" {
				if _, hasCurrency := tpl.Mapping(models.FieldCurrency); !hasCurrency {
					item.SetField(models.FieldCurrency, res.Currency)
				}
			}
			reports = append(reports, FieldReport{Field: m.Field, Method: locator.MethodPosition, Value: res.Value})
		}

		if resolved == 0 || item.Title == "" {
			return
		}
		urlutil.AbsolutizeItem(item)
		r := &Result{Item: item, Reports: reports}
		if titles != nil {
			r.Duplicate = titles.Contains(item.Title)
		}
		results = append(results, r)
	})

	if len(results) == 0 {
		return nil, fmt.Errorf("template %q matched no cards on %s", tpl.Name, pageURL)
	}
	return results, nil
}

// cardSelector returns the parent selector the mappings share, or "" when
// the fields were captured from differently-rooted elements.
func cardSelector(tpl *models.Template) string {
	sel := ""
	for _, m := range tpl.Fields {
		if m.ParentSelector == "" {
			return ""
		}
		if sel == "" {
			sel = m.ParentSelector
			continue
		}
		if m.ParentSelector != sel {
			return ""
		}
	}
	return sel
}

// fieldInCard finds a mapping's element inside one card by child position,
// verified against the recorded tag name.
func fieldInCard(card *goquery.Selection, m models.FieldMapping) *goquery.Selection {
	child := card.Children().Eq(m.RelativePosition)
	if child.Length() == 0 {
		return nil
	}
	if m.TagName != "" && goquery.NodeName(child) != m.TagName {
		// Layout shifted inside the card; look for the tag among siblings.
		alt := card.ChildrenFiltered(m.TagName).First()
		if alt.Length() == 0 {
			return nil
		}
		return alt
	}
	return child
}
