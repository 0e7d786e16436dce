package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var backgroundImageRe = regexp.MustCompile(`url\(['"]?([^'")]+)['"]?\)`)

// extractImage resolves an image URL from the element: its own img
// attributes first, then a descendant img, then the surrounding scope, and
// finally an inline background-image. First match wins; the empty string
// means no image was found.
func extractImage(sel *goquery.Selection) Result {
	if goquery.NodeName(sel) == "img" {
		if src := imgSource(sel); src != "" {
			return Result{Value: src}
		}
	}

	if src := firstDescendantImg(sel); src != "" {
		return Result{Value: src}
	}

	// The click often lands on a caption or wrapper next to the image, so
	// widen to the parent's scope before giving up.
	if parent := sel.Parent(); parent.Length() > 0 {
		if src := firstDescendantImg(parent); src != "" {
			return Result{Value: src}
		}
	}

	if src := backgroundImage(sel); src != "" {
		return Result{Value: src}
	}
	return Result{}
}

// ImageURL exposes the image strategy for other packages (template sample
// values, re-extraction previews).
func ImageURL(sel *goquery.Selection) string {
	return extractImage(sel).Value
}

// imgSource reads an img element's source: src, then data-src (lazy
// loaders), then the first candidate in srcset.
func imgSource(img *goquery.Selection) string {
	if src, ok := img.Attr("src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	if src, ok := img.Attr("data-src"); ok && strings.TrimSpace(src) != "" {
		return strings.TrimSpace(src)
	}
	if srcset, ok := img.Attr("srcset"); ok {
		if src := firstSrcsetURL(srcset); src != "" {
			return src
		}
	}
	return ""
}

// firstSrcsetURL pulls the first URL out of a srcset attribute. Entries look
// like "image.jpg 2x" or "image.jpg 1024w".
func firstSrcsetURL(srcset string) string {
	for _, part := range strings.Split(srcset, ",") {
		tokens := strings.Fields(strings.TrimSpace(part))
		if len(tokens) > 0 && tokens[0] != "" {
			return tokens[0]
		}
	}
	return ""
}

func firstDescendantImg(scope *goquery.Selection) string {
	var found string
	scope.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if src := imgSource(img); src != "" {
			found = src
			return false
		}
		return true
	})
	return found
}

// backgroundImage parses url(...) out of the element's inline style, then
// out of any descendant's. Computed styles are not reachable from a parsed
// document; the guest script covers that case in-page.
func backgroundImage(sel *goquery.Selection) string {
	if src := styleURL(sel); src != "" {
		return src
	}
	var found string
	sel.Find("[style]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if src := styleURL(s); src != "" {
			found = src
			return false
		}
		return true
	})
	return found
}

func styleURL(sel *goquery.Selection) string {
	style, ok := sel.Attr("style")
	if !ok || !strings.Contains(style, "background") {
		return ""
	}
	if m := backgroundImageRe.FindStringSubmatch(style); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
