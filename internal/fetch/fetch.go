// Package fetch retrieves menu pages for unattended re-extraction. Static
// HTTP is the default; pages that only materialize under JavaScript go
// through the headless browser pool instead.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/menucollect/clipper/internal/cache"
	"github.com/menucollect/clipper/internal/ratelimit"
	urlutil "github.com/menucollect/clipper/internal/utils/url"
	"github.com/menucollect/clipper/pkg/models"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; clipper/1.0)"
	maxBodyBytes     = 20 << 20
)

// Renderer loads a page with JavaScript executed. *browser.Pool satisfies
// this.
type Renderer interface {
	Render(ctx context.Context, url string, settle, timeout time.Duration) (string, error)
}

// Options control one fetch.
type Options struct {
	// Render forces the page through the browser renderer.
	Render bool
	// Settle is extra wait after load when rendering.
	Settle time.Duration
	// Headers are sent with static requests.
	Headers map[string]string
	// CacheTTL overrides the snapshot cache lifetime.
	CacheTTL time.Duration
	// Timeout bounds the whole fetch.
	Timeout time.Duration
}

// Fetcher retrieves pages with caching and per-host rate limiting.
type Fetcher struct {
	client    *http.Client
	cache     cache.Cache
	limiter   ratelimit.RateLimiter
	renderer  Renderer
	userAgent string
}

// New creates a fetcher. cache, limiter, and renderer may each be nil to
// disable that concern.
func New(client *http.Client, c cache.Cache, lim ratelimit.RateLimiter, renderer Renderer, userAgent string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Fetcher{
		client:    client,
		cache:     c,
		limiter:   lim,
		renderer:  renderer,
		userAgent: userAgent,
	}
}

// Fetch retrieves url and returns its snapshot plus a parsed document.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts Options) (*models.PageSnapshot, *goquery.Document, error) {
	if err := urlutil.Validate(url); err != nil {
		return nil, nil, err
	}

	if f.cache != nil {
		if snap, ok := f.cache.Get(cache.Key(url)); ok {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
			if err == nil {
				return snap, doc, nil
			}
			log.Warn().Err(err).Str("url", url).Msg("Cached snapshot failed to parse, refetching")
		}
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return nil, nil, fmt.Errorf("rate limit wait for %s: %w", url, err)
		}
	}

	var snap *models.PageSnapshot
	var err error
	if opts.Render {
		snap, err = f.fetchRendered(ctx, url, opts)
	} else {
		snap, err = f.fetchStatic(ctx, url, opts)
	}
	if err != nil {
		return nil, nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil, nil, fmt.Errorf("parse HTML from %s: %w", url, err)
	}
	snap.Title = strings.TrimSpace(doc.Find("title").First().Text())
	snap.Metadata = pageMetadata(doc)

	if f.cache != nil {
		f.cache.Set(cache.Key(url), snap, opts.CacheTTL)
	}
	return snap, doc, nil
}

func (f *Fetcher) fetchStatic(ctx context.Context, url string, opts Options) (*models.PageSnapshot, error) {
	start := time.Now()

	reqCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	elapsed := time.Since(start)
	log.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("Static fetch complete")

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	return &models.PageSnapshot{
		URL:          url,
		StatusCode:   resp.StatusCode,
		HTML:         string(body),
		FetchedAt:    time.Now(),
		ResponseTime: elapsed.Milliseconds(),
	}, nil
}

func (f *Fetcher) fetchRendered(ctx context.Context, url string, opts Options) (*models.PageSnapshot, error) {
	if f.renderer == nil {
		return nil, fmt.Errorf("rendered fetch requested but no browser pool is configured")
	}
	start := time.Now()
	html, err := f.renderer.Render(ctx, url, opts.Settle, opts.Timeout)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	log.Debug().Str("url", url).Dur("elapsed", elapsed).Msg("Rendered fetch complete")

	return &models.PageSnapshot{
		URL:          url,
		StatusCode:   http.StatusOK,
		HTML:         html,
		FetchedAt:    time.Now(),
		ResponseTime: elapsed.Milliseconds(),
	}, nil
}

// pageMetadata pulls og: and description meta tags, kept alongside the
// snapshot to help name templates and debug mismatched pages.
func pageMetadata(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok || content == "" {
			return
		}
		if name, ok := s.Attr("name"); ok && name != "" {
			meta[name] = content
			return
		}
		if prop, ok := s.Attr("property"); ok && strings.HasPrefix(prop, "og:") {
			meta[prop] = content
		}
	})
	if len(meta) == 0 {
		return nil
	}
	return meta
}
