package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/menucollect/clipper/internal/guest"
	"github.com/menucollect/clipper/pkg/models"
	"github.com/rs/zerolog/log"
)

// EventHandler receives decoded guest events. It is called sequentially on
// a dedicated goroutine, in the order the guest emitted them.
type EventHandler func(ctx context.Context, ev *models.Event)

// Session is a live browser tab with the capture script installed. The
// script is re-injected on every navigation, so the operator can browse
// freely between captures.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	allocCancel context.CancelFunc
	handler     EventHandler
	events      chan *models.Event

	closeOnce sync.Once
}

// NewSession launches a browser, installs the capture script, and starts
// listening for guest events. The caller owns the returned session and must
// Close it.
func NewSession(parent context.Context, opts Options, handler EventHandler) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocatorOptions(opts)...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		handler:     handler,
		events:      make(chan *models.Event, eventQueueSize),
	}
	go s.dispatchLoop()

	chromedp.ListenTarget(ctx, s.onTargetEvent)

	// Install the guest script for every future document, then start the
	// browser on a blank page. The AddScript registration must run inside
	// the browser context.
	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := cdpruntime.Enable().Do(ctx); err != nil {
				return err
			}
			_, err := page.AddScriptToEvaluateOnNewDocument(guest.Script()).Do(ctx)
			return err
		}),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	log.Debug().Bool("headless", opts.Headless).Msg("Browser session started")
	return s, nil
}

// eventQueueSize bounds the handoff queue between the ListenTarget callback
// and the dispatch goroutine. Paired events like a template field selection
// followed by its preview arrive within the same console flush, so a small
// buffer is plenty.
const eventQueueSize = 64

// onTargetEvent filters console output for guest protocol envelopes. Events
// are handed to the dispatch goroutine rather than handled inline: running
// browser commands from inside a ListenTarget callback deadlocks chromedp.
// The queue keeps events in emission order.
func (s *Session) onTargetEvent(ev interface{}) {
	api, ok := ev.(*cdpruntime.EventConsoleAPICalled)
	if !ok || api.Type != cdpruntime.APITypeLog {
		return
	}
	for _, arg := range api.Args {
		line := consoleArgString(arg)
		if !strings.HasPrefix(line, guest.EventPrefix) {
			continue
		}
		event, ok, err := guest.ParseEvent(line)
		if err != nil {
			log.Warn().Err(err).Msg("Malformed guest event")
			continue
		}
		if !ok || s.handler == nil {
			continue
		}
		select {
		case s.events <- event:
		default:
			log.Warn().Str("type", event.Type).Msg("Guest event queue full, dropping event")
		}
	}
}

// dispatchLoop delivers queued guest events to the handler one at a time,
// so the handler sees them in the order the guest emitted them. It exits
// when the session context is cancelled.
func (s *Session) dispatchLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.events:
			s.handler(s.ctx, event)
		}
	}
}

// Navigate loads url and waits for the document body. The capture script is
// injected automatically by the registration made at startup.
func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.withDeadline(ctx, 60*time.Second)
	defer cancel()

	if err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	log.Debug().Str("url", url).Msg("Navigation complete")
	return nil
}

// Send delivers a command to the guest script in the current document.
func (s *Session) Send(ctx context.Context, cmd models.Command) error {
	js, err := guest.CommandJS(cmd)
	if err != nil {
		return err
	}
	runCtx, cancel := s.withDeadline(ctx, 10*time.Second)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, nil)); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd.Command, err)
	}
	return nil
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	runCtx, cancel := s.withDeadline(ctx, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// HTML returns the current document's outer HTML.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	runCtx, cancel := s.withDeadline(ctx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Done is closed when the browser exits, including when the operator closes
// the window by hand.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Close tears the session down. Safe to call more than once, and safe to
// call after the operator has already closed the browser window.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.allocCancel()
		log.Debug().Msg("Browser session closed")
	})
}

func (s *Session) withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithTimeout(s.ctx, d)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// consoleArgString renders a console argument. Guest envelopes arrive as
// JSON-quoted strings; everything else falls back to the raw value or the
// object description.
func consoleArgString(arg *cdpruntime.RemoteObject) string {
	if arg == nil {
		return ""
	}
	if len(arg.Value) > 0 {
		raw := string(arg.Value)
		if unquoted, err := strconv.Unquote(raw); err == nil {
			return unquoted
		}
		if raw != "null" && raw != "undefined" {
			return raw
		}
	}
	return arg.Description
}
