package urlutil

import (
	"fmt"
	"net/url"

	"github.com/menucollect/clipper/pkg/models"
)

// Validate checks that urlStr is an absolute http(s) URL with a host.
func Validate(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: must be http or https, got %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}
	return nil
}

// Host returns the host portion of urlStr, or "" if it does not parse.
func Host(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Host
}

// Resolve resolves a possibly-relative href against base. On any parse
// failure the href is returned untouched.
func Resolve(base, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(u).String()
}

// AbsolutizeItem rewrites the item's image URL to be absolute against its
// page URL. Values captured from a live DOM are already absolute; values
// re-extracted from raw HTML often are not.
func AbsolutizeItem(item *models.Item) {
	if item == nil || item.PageURL == "" || item.ImageURL == "" {
		return
	}
	item.ImageURL = Resolve(item.PageURL, item.ImageURL)
}
