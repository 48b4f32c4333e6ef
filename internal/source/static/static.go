// Package static implements the page source over plain HTTP with colly. It
// serves sites that render listings server side and backs integration tests.
package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
	"github.com/JakeFAU/remote-job-crawler/internal/source/extract"
)

const defaultTimeout = 15 * time.Second

// Config controls the HTTP collector.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	BaseURL   string
	Selectors extract.Selectors
	// Transport overrides the HTTP transport. Nil uses a pooled default.
	Transport http.RoundTripper
}

// Source fetches pages with a shared colly collector.
type Source struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Source.
func New(cfg Config) (*Source, error) {
	if err := cfg.Selectors.Validate(); err != nil {
		return nil, fmt.Errorf("static selectors: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	return &Source{cfg: cfg, base: c}, nil
}

// Close is a no-op; connections are pooled by the transport.
func (s *Source) Close() error { return nil }

type fetched struct {
	address string
	body    []byte
}

// fetch performs one GET and returns the final address and body.
func (s *Source) fetch(ctx context.Context, url string) (fetched, error) {
	if err := ctx.Err(); err != nil {
		return fetched{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	collector := s.base.Clone()
	var (
		out      fetched
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		out = fetched{address: r.Request.URL.String(), body: append([]byte(nil), r.Body...)}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fetched{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			err = fetchErr
		}
		if err != nil {
			return fetched{}, classify(url, err)
		}
		return out, nil
	}
}

func classify(url string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: fetch %s: %w", crawler.ErrTimeout, url, err)
	}
	return fmt.Errorf("fetch %s: %w", url, err)
}

// Open fetches url as the first results page.
func (s *Source) Open(ctx context.Context, url string) (crawler.Page, error) {
	p := &Page{src: s}
	if err := p.Navigate(ctx, url); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenDetail returns a scope that fetches one detail page per call.
func (s *Source) OpenDetail(context.Context) (crawler.DetailScope, error) {
	return detailScope{src: s}, nil
}

// Page holds the last fetched results document.
type Page struct {
	src *Source

	mu      sync.Mutex
	address string
	body    []byte
	doc     *goquery.Document
}

func (p *Page) load(ctx context.Context, url string) error {
	got, err := p.src.fetch(ctx, url)
	if err != nil {
		return err
	}
	doc, err := extract.Parse(bytes.NewReader(got.body))
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.address, p.body, p.doc = got.address, got.body, doc
	p.mu.Unlock()
	return nil
}

func (p *Page) current() (string, *goquery.Document) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.address, p.doc
}

// Address returns the final URL of the last fetch.
func (p *Page) Address() string {
	addr, _ := p.current()
	return addr
}

// Navigate fetches address.
func (p *Page) Navigate(ctx context.Context, address string) error {
	return p.load(ctx, address)
}

// WaitReady succeeds when the fetched document carries the listing container.
func (p *Page) WaitReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr, doc := p.current()
	if doc == nil || !extract.HasListings(doc, p.src.cfg.Selectors) {
		return fmt.Errorf("%w: no listing container at %s", crawler.ErrTimeout, addr)
	}
	return nil
}

// Reload fetches the current address again.
func (p *Page) Reload(ctx context.Context) error {
	return p.load(ctx, p.Address())
}

// Listings extracts the cards of the fetched document.
func (p *Page) Listings(context.Context) ([]crawler.ListingSummary, error) {
	_, doc := p.current()
	if doc == nil {
		return nil, fmt.Errorf("%w: page not loaded", crawler.ErrMissingField)
	}
	base := p.src.cfg.BaseURL
	if base == "" {
		base = p.Address()
	}
	return extract.Listings(doc, base, p.src.cfg.Selectors)
}

// Snapshot returns the raw HTML of the last fetch.
func (p *Page) Snapshot(context.Context) ([]byte, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.body == nil {
		return nil, "", errors.New("snapshot: page not loaded")
	}
	return append([]byte(nil), p.body...), "text/html; charset=utf-8", nil
}

// Close drops the cached document.
func (p *Page) Close() error {
	p.mu.Lock()
	p.doc, p.body = nil, nil
	p.mu.Unlock()
	return nil
}

type detailScope struct {
	src *Source
}

func (d detailScope) Fetch(ctx context.Context, url string) (crawler.ListingDetail, error) {
	got, err := d.src.fetch(ctx, url)
	if err != nil {
		return crawler.ListingDetail{}, err
	}
	doc, err := extract.Parse(bytes.NewReader(got.body))
	if err != nil {
		return crawler.ListingDetail{}, err
	}
	return extract.Detail(doc, d.src.cfg.Selectors), nil
}

func (detailScope) Close() error { return nil }

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
