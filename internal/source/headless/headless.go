// Package headless implements the page source on Chrome via chromedp. The
// results page lives in one tab; every listing detail opens its own tab that
// is closed when the scope is released.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
	"github.com/JakeFAU/remote-job-crawler/internal/source/extract"
)

const (
	defaultPageTimeout   = 20 * time.Second
	defaultDetailTimeout = 20 * time.Second
	screenshotQuality    = 100
	acceptLanguage       = "zh-CN,zh;q=0.9,en;q=0.6"
)

// Config controls the browser and page budgets.
type Config struct {
	// Headless hides the browser window. Set false to watch the crawl.
	Headless      bool
	UserAgent     string
	PageTimeout   time.Duration
	DetailTimeout time.Duration
	// BaseURL resolves relative listing links.
	BaseURL   string
	Selectors extract.Selectors
}

func (c Config) withDefaults() Config {
	if c.PageTimeout <= 0 {
		c.PageTimeout = defaultPageTimeout
	}
	if c.DetailTimeout <= 0 {
		c.DetailTimeout = defaultDetailTimeout
	}
	return c
}

// Source owns one browser process.
type Source struct {
	cfg           Config
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

// New launches the browser. The returned Source must be closed.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Source, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Selectors.Validate(); err != nil {
		return nil, fmt.Errorf("headless selectors: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Warnf),
	)
	s := &Source{
		cfg:           cfg,
		logger:        logger.Named("headless"),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	if err := attach(ctx, browserCtx, cfg.PageTimeout); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: launch browser: %w", crawler.ErrSourceFatal, err)
	}
	s.logger.Info("browser started", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// attach makes the first Run on target, which starts the browser or creates
// the tab. That Run must use target itself: chromedp binds the process and the
// tab event loop to its context. The wait is bounded by timeout and ctx; the
// caller cancels target when attach fails.
func attach(ctx, target context.Context, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(target) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w: attach after %s", crawler.ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// Close shuts the browser down.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
	})
	return nil
}

// Open creates a tab and navigates it to url.
func (s *Source) Open(ctx context.Context, url string) (crawler.Page, error) {
	tab, err := s.newTab(ctx)
	if err != nil {
		return nil, err
	}
	p := &Page{src: s, tab: tab}
	if err := p.Navigate(ctx, url); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// OpenDetail creates an isolated tab for one listing.
func (s *Source) OpenDetail(ctx context.Context) (crawler.DetailScope, error) {
	tab, err := s.newTab(ctx)
	if err != nil {
		return nil, err
	}
	return &detailScope{src: s, tab: tab}, nil
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *Source) newTab(ctx context.Context) (tab, error) {
	if err := s.browserCtx.Err(); err != nil {
		return tab{}, fmt.Errorf("%w: browser closed: %w", crawler.ErrSourceFatal, err)
	}
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	if err := attach(ctx, tabCtx, s.cfg.PageTimeout); err != nil {
		cancel()
		switch {
		case ctx.Err() != nil:
			return tab{}, fmt.Errorf("open tab: %w", ctx.Err())
		case errors.Is(err, crawler.ErrTimeout):
			return tab{}, fmt.Errorf("open tab: %w", err)
		default:
			return tab{}, classify(ctx, s.browserCtx, tabCtx, err)
		}
	}
	return tab{ctx: tabCtx, cancel: cancel}, nil
}

// run executes actions on an attached tab within timeout, also stopping when
// ctx ends. Only the derived context is canceled; the tab stays usable.
func (s *Source) run(ctx context.Context, t tab, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, s.setup(), chromedp.Tasks(actions)); err != nil {
		return classify(ctx, s.browserCtx, runCtx, err)
	}
	return nil
}

func (s *Source) setup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s.cfg.UserAgent == "" {
			return nil
		}
		override := emulation.SetUserAgentOverride(s.cfg.UserAgent).WithAcceptLanguage(acceptLanguage)
		if err := override.Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// classify maps a chromedp failure onto the crawler error taxonomy.
func classify(caller, browser, run context.Context, err error) error {
	switch {
	case caller.Err() != nil:
		return fmt.Errorf("browser action: %w", caller.Err())
	case browser.Err() != nil,
		errors.Is(err, chromedp.ErrInvalidContext),
		errors.Is(err, chromedp.ErrChannelClosed):
		return fmt.Errorf("%w: %w", crawler.ErrSourceFatal, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(run.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", crawler.ErrTimeout, err)
	default:
		return fmt.Errorf("browser action: %w", err)
	}
}

// Page is a results page tab.
type Page struct {
	src *Source
	tab tab

	mu      sync.Mutex
	address string
}

// Address returns the tab location after the last navigation.
func (p *Page) Address() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.address
}

func (p *Page) setAddress(loc string) {
	p.mu.Lock()
	p.address = loc
	p.mu.Unlock()
}

// Navigate loads address in the tab and records the resulting location.
func (p *Page) Navigate(ctx context.Context, address string) error {
	var loc string
	if err := p.src.run(ctx, p.tab, p.src.cfg.PageTimeout,
		chromedp.Navigate(address),
		chromedp.Location(&loc),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", address, err)
	}
	p.setAddress(loc)
	return nil
}

// WaitReady waits for the listing container.
func (p *Page) WaitReady(ctx context.Context) error {
	sel := p.src.cfg.Selectors.ListContainer
	if err := p.src.run(ctx, p.tab, p.src.cfg.PageTimeout, chromedp.WaitReady(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", sel, err)
	}
	return nil
}

// Reload re-requests the current page.
func (p *Page) Reload(ctx context.Context) error {
	var loc string
	if err := p.src.run(ctx, p.tab, p.src.cfg.PageTimeout, chromedp.Reload(), chromedp.Location(&loc)); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	p.setAddress(loc)
	return nil
}

// Listings extracts listing cards from the rendered DOM.
func (p *Page) Listings(ctx context.Context) ([]crawler.ListingSummary, error) {
	var html string
	if err := p.src.run(ctx, p.tab, p.src.cfg.PageTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("read results html: %w", err)
	}
	doc, err := extract.Parse(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return extract.Listings(doc, p.src.cfg.BaseURL, p.src.cfg.Selectors)
}

// Snapshot captures a full-page PNG screenshot.
func (p *Page) Snapshot(ctx context.Context) ([]byte, string, error) {
	var buf []byte
	if err := p.src.run(ctx, p.tab, p.src.cfg.PageTimeout, chromedp.FullScreenshot(&buf, screenshotQuality)); err != nil {
		return nil, "", fmt.Errorf("screenshot: %w", err)
	}
	return buf, "image/png", nil
}

// Close closes the tab.
func (p *Page) Close() error {
	p.tab.cancel()
	return nil
}

type detailScope struct {
	src *Source
	tab tab
}

// Fetch loads a listing detail page and extracts its fields.
func (d *detailScope) Fetch(ctx context.Context, url string) (crawler.ListingDetail, error) {
	var html string
	sel := d.src.cfg.Selectors
	if err := d.src.run(ctx, d.tab, d.src.cfg.DetailTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady(sel.DetailReady, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return crawler.ListingDetail{}, fmt.Errorf("detail %s: %w", url, err)
	}
	doc, err := extract.Parse(strings.NewReader(html))
	if err != nil {
		return crawler.ListingDetail{}, err
	}
	return extract.Detail(doc, sel), nil
}

func (d *detailScope) Close() error {
	d.tab.cancel()
	return nil
}
