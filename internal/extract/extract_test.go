package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/menucollect/clipper/pkg/models"
)

func parseFirst(t *testing.T, html, selector string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		t.Fatalf("selector %q matched nothing", selector)
	}
	return sel
}

func TestDeepTextSkipsScriptAndStyle(t *testing.T) {
	html := `<div>Start<script>ignored()</script> middle <style>.x{}</style>end</div>`
	sel := parseFirst(t, html, "div")

	got := DeepText(sel)
	if got != "Start middle end" {
		t.Errorf("DeepText = %q, want %q", got, "Start middle end")
	}
}

func TestDeepTextNestedAndNoscript(t *testing.T) {
	html := `<div><h3>Classic <em>Burger</em></h3><noscript>fallback</noscript><p>
		with   fries
	</p></div>`
	sel := parseFirst(t, html, "div")

	got := DeepText(sel)
	if got != "Classic Burger with fries" {
		t.Errorf("DeepText = %q, want %q", got, "Classic Burger with fries")
	}
}

func TestDeepTextFallsBackToValue(t *testing.T) {
	sel := parseFirst(t, `<form><input type="text" value="Paneer Tikka"></form>`, "input")

	if got := DeepText(sel); got != "Paneer Tikka" {
		t.Errorf("DeepText = %q, want %q", got, "Paneer Tikka")
	}
}

func TestExtractPriceField(t *testing.T) {
	sel := parseFirst(t, `<span class="price">$12.99</span>`, "span")

	res := Extract(models.FieldPrice, sel)
	if res.Value != "12.99" {
		t.Errorf("price = %q, want %q", res.Value, "12.99")
	}
	if res.Currency != "$" {
		t.Errorf("currency = %q, want %q", res.Currency, "$")
	}
}

func TestExtractPriceNoPatternKeepsText(t *testing.T) {
	sel := parseFirst(t, `<span>Market Price</span>`, "span")

	res := Extract(models.FieldPrice, sel)
	if res.Value != "Market Price" {
		t.Errorf("price = %q, want %q", res.Value, "Market Price")
	}
	if res.Currency != "" {
		t.Errorf("currency = %q, want empty", res.Currency)
	}
}

func TestExtractCurrencyField(t *testing.T) {
	sel := parseFirst(t, `<span>450 Rs.</span>`, "span")

	res := Extract(models.FieldCurrency, sel)
	if res.Value != "Rs." {
		t.Errorf("currency = %q, want %q", res.Value, "Rs.")
	}
}

func TestExtractImage(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		selector string
		want     string
	}{
		{
			"img src",
			`<img src="/dish.jpg">`,
			"img",
			"/dish.jpg",
		},
		{
			"img data-src lazy",
			`<img data-src="https://cdn.example.com/lazy.png">`,
			"img",
			"https://cdn.example.com/lazy.png",
		},
		{
			"img srcset first candidate",
			`<img srcset="/small.jpg 1x, /big.jpg 2x">`,
			"img",
			"/small.jpg",
		},
		{
			"descendant img",
			`<figure><img src="/nested.webp"><figcaption>dish</figcaption></figure>`,
			"figure",
			"/nested.webp",
		},
		{
			"sibling scope via parent",
			`<div><img src="/sibling.jpg"><span class="caption">dish</span></div>`,
			"span.caption",
			"/sibling.jpg",
		},
		{
			"inline background image",
			`<div class="hero" style="background-image: url('/bg.jpg')"></div>`,
			"div.hero",
			"/bg.jpg",
		},
		{
			"no image anywhere",
			`<div><p>text only</p></div>`,
			"div",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := parseFirst(t, tt.html, tt.selector)
			res := Extract(models.FieldImage, sel)
			if res.Value != tt.want {
				t.Errorf("image = %q, want %q", res.Value, tt.want)
			}
		})
	}
}

func TestExtractDefaultFieldIsDeepText(t *testing.T) {
	sel := parseFirst(t, `<h3>Classic Burger</h3>`, "h3")

	res := Extract(models.FieldTitle, sel)
	if res.Value != "Classic Burger" {
		t.Errorf("title = %q, want %q", res.Value, "Classic Burger")
	}
}

func TestExtractNilSelection(t *testing.T) {
	if res := Extract(models.FieldTitle, nil); res.Value != "" {
		t.Errorf("expected empty result for nil selection, got %q", res.Value)
	}
}
