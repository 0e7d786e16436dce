package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

const (
	defaultPoolSize = 3
	maxPoolSize     = 10
)

// Pool keeps a fixed set of warm headless tabs for unattended page
// rendering. Creating a Chrome context costs over a second; reusing one
// costs almost nothing, which matters when re-extracting a template across
// many pages.
type Pool struct {
	size        int
	tabs        chan *Tab
	allocCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Tab is a pooled browser context.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// NewPool starts size warm headless contexts. Options are forced headless
// regardless of opts.Headless.
func NewPool(parent context.Context, size int, opts Options) (*Pool, error) {
	if size <= 0 {
		size = defaultPoolSize
	}
	if size > maxPoolSize {
		size = maxPoolSize
	}
	opts.Headless = true

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocatorOptions(opts)...)
	pool := &Pool{
		size:        size,
		tabs:        make(chan *Tab, size),
		allocCancel: allocCancel,
	}

	for i := 0; i < size; i++ {
		tabCtx, tabCancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
			tabCancel()
			pool.Close()
			return nil, fmt.Errorf("failed to warm up browser context %d: %w", i, err)
		}
		pool.tabs <- &Tab{Ctx: tabCtx, cancel: tabCancel}
	}

	log.Debug().Int("size", size).Msg("Browser pool ready")
	return pool, nil
}

// Acquire takes a tab from the pool, waiting up to timeout. A zero timeout
// waits indefinitely.
func (p *Pool) Acquire(timeout time.Duration) (*Tab, error) {
	var tab *Tab
	if timeout > 0 {
		select {
		case tab = <-p.tabs:
		case <-time.After(timeout):
			return nil, fmt.Errorf("timeout waiting for an available browser context")
		}
	} else {
		tab = <-p.tabs
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		tab.cancel()
		return nil, fmt.Errorf("browser pool is closed")
	}
	return tab, nil
}

// Release returns a tab, resetting it to a blank page so state from one
// target cannot leak into the next.
func (p *Pool) Release(tab *Tab) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		tab.cancel()
		return
	}
	p.mu.Unlock()

	if err := chromedp.Run(tab.Ctx, chromedp.Navigate("about:blank")); err != nil {
		log.Warn().Err(err).Msg("Discarding browser context that failed reset")
		tab.cancel()
		return
	}

	select {
	case p.tabs <- tab:
	default:
		tab.cancel()
	}
}

// Render loads url in a pooled tab and returns the document's outer HTML
// after JavaScript has had a chance to run.
func (p *Pool) Render(ctx context.Context, url string, settle time.Duration, timeout time.Duration) (string, error) {
	tab, err := p.Acquire(timeout)
	if err != nil {
		return "", err
	}
	defer p.Release(tab)

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(tab.Ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if settle > 0 {
				select {
				case <-time.After(settle):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		}),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", url, err)
	}
	return html, nil
}

// Close cancels every tab and the shared allocator. Idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	close(p.tabs)
	for tab := range p.tabs {
		tab.cancel()
	}
	p.allocCancel()
	log.Debug().Msg("Browser pool closed")
	return nil
}

// Available reports how many tabs are idle.
func (p *Pool) Available() int {
	return len(p.tabs)
}
