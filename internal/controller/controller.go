// Package controller drives a paginated listing crawl: it fetches each results
// page, evaluates every listing through an isolated detail scope, persists
// retained listings as they are found, and advances until the page limit or
// until the site stops paginating.
package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/remote-job-crawler/internal/clock/system"
	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
	"github.com/JakeFAU/remote-job-crawler/internal/evaluator"
	idgen "github.com/JakeFAU/remote-job-crawler/internal/id/uuid"
	"github.com/JakeFAU/remote-job-crawler/internal/progress"
	"github.com/JakeFAU/remote-job-crawler/internal/recency"
)

const snapshotTimeout = 15 * time.Second

// Skip reasons reported on LISTING_SKIPPED events.
const (
	SkipMissingField = "missing_field"
	SkipDuplicate    = "duplicate"
	SkipTimeout      = "timeout"
	SkipFetchError   = "fetch_error"
)

// IDGenerator provides run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Options carries the collaborators of a Controller. Source and Sink are
// required; everything else has a working default.
type Options struct {
	Source crawler.Source
	Sink   crawler.ResultSink
	// Artifacts receives a diagnostic snapshot when a run aborts.
	Artifacts crawler.ArtifactStore
	// Limiter paces detail fetches.
	Limiter crawler.Limiter
	Retry   RetryPolicy
	Clock   crawler.Clock
	IDs     IDGenerator
	Emitter progress.Emitter
	Logger  *zap.Logger

	// StartURL is the first results page.
	StartURL string
	// RequiredParams are restored on every page advance when missing.
	RequiredParams map[string]string
	// PageSettle is waited after a results page becomes ready.
	PageSettle time.Duration
	// DetailSettle is waited after each detail fetch.
	DetailSettle time.Duration
	// SnapshotPrefix is the artifact path prefix for abort snapshots.
	SnapshotPrefix string
}

// Controller runs one crawl per Run call. It is not safe for concurrent Runs.
type Controller struct {
	cfg       crawler.Configuration
	opts      Options
	evaluator *evaluator.Evaluator
	logger    *zap.Logger
}

// New validates the configuration and collaborators and returns a Controller.
func New(cfg crawler.Configuration, opts Options) (*Controller, error) {
	if opts.Source == nil {
		return nil, errors.New("controller: page source is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("controller: result sink is required")
	}
	if strings.TrimSpace(opts.StartURL) == "" {
		return nil, errors.New("controller: start url is required")
	}
	if cfg.PageLimit < 1 {
		return nil, fmt.Errorf("controller: page limit must be >= 1, got %d", cfg.PageLimit)
	}
	if cfg.DaysLimit < 0 {
		return nil, fmt.Errorf("controller: days limit must be >= 0, got %d", cfg.DaysLimit)
	}
	if opts.Retry == nil {
		opts.Retry = NewExponentialRetryPolicy(0, 0)
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.IDs == nil {
		opts.IDs = idgen.New()
	}
	if opts.Emitter == nil {
		opts.Emitter = progress.Discard
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SnapshotPrefix == "" {
		opts.SnapshotPrefix = "snapshots"
	}
	return &Controller{
		cfg:       cfg,
		opts:      opts,
		evaluator: evaluator.New(evaluator.NewCriteria(cfg)),
		logger:    opts.Logger.Named("controller"),
	}, nil
}

// run holds the mutable state of a single Run call.
type run struct {
	id      uuid.UUID
	state   crawler.CrawlState
	visited visitTracker
	started time.Time
	page    crawler.Page
	result  crawler.RunResult
}

// Run executes the crawl and always returns a populated result. The error of
// an aborted or canceled run is carried in RunResult.Err.
func (c *Controller) Run(ctx context.Context) crawler.RunResult {
	id, err := c.opts.IDs.NewRawID()
	if err != nil {
		id = uuid.New()
	}
	r := &run{
		id: id,
		state: crawler.CrawlState{
			CurrentPage: 1,
			PageLimit:   c.cfg.PageLimit,
			LastPageURL: c.opts.StartURL,
		},
		visited: newVisitTracker(),
		started: c.opts.Clock.Now(),
	}
	r.result = crawler.RunResult{RunID: id.String(), Output: c.cfg.OutputDestination}
	logger := c.logger.With(zap.String("run_id", r.result.RunID))

	c.emit(r, progress.Event{Stage: progress.StageRunStart, URL: c.opts.StartURL})
	logger.Info("crawl started",
		zap.String("keyword", c.cfg.Keyword),
		zap.Int("page_limit", c.cfg.PageLimit),
		zap.Int("days_limit", c.cfg.DaysLimit),
		zap.String("url", c.opts.StartURL),
	)

	status, runErr := c.crawl(ctx, r, logger)
	if r.page != nil {
		if status == crawler.StatusAborted {
			r.result.SnapshotURI = c.snapshot(ctx, r, logger)
		}
		if err := r.page.Close(); err != nil {
			logger.Warn("close results page", zap.Error(err))
		}
	}
	return c.finish(r, status, runErr, logger)
}

func (c *Controller) crawl(ctx context.Context, r *run, logger *zap.Logger) (crawler.RunStatus, error) {
	page, err := c.openFirstPage(ctx, r, logger)
	if err != nil {
		return c.terminal(ctx, err)
	}
	r.page = page

	for {
		if err := ctx.Err(); err != nil {
			return crawler.StatusCanceled, err
		}
		if err := c.processPage(ctx, r, logger); err != nil {
			return c.terminal(ctx, err)
		}
		if r.state.CurrentPage >= r.state.PageLimit {
			logger.Info("page limit reached", zap.Int("page", r.state.CurrentPage))
			return crawler.StatusPageLimitReached, nil
		}
		err := c.advance(ctx, r, logger)
		if errors.Is(err, crawler.ErrNavigationStall) {
			logger.Info("no further page", zap.Int("page", r.state.CurrentPage))
			return crawler.StatusNoFurtherPage, nil
		}
		if err != nil {
			return c.terminal(ctx, err)
		}
		if err := c.await(ctx, r, logger); err != nil {
			return c.terminal(ctx, err)
		}
	}
}

// terminal maps a run-stopping error onto its status.
func (c *Controller) terminal(ctx context.Context, err error) (crawler.RunStatus, error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return crawler.StatusCanceled, err
	}
	return crawler.StatusAborted, err
}

// openFirstPage opens the start URL and waits for its listings. A failed open
// is retried once with a fresh Open; a failed wait falls back to a reload.
func (c *Controller) openFirstPage(ctx context.Context, r *run, logger *zap.Logger) (crawler.Page, error) {
	var (
		page crawler.Page
		err  error
	)
	for attempt := 0; ; attempt++ {
		page, err = c.opts.Source.Open(ctx, c.opts.StartURL)
		if err == nil {
			break
		}
		if !c.opts.Retry.ShouldRetry(err, attempt) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: open page 1: %w", crawler.ErrPageFetch, err)
		}
		logger.Warn("open results page failed, retrying", zap.Int("page", 1), zap.Error(err))
		if err := sleep(ctx, c.opts.Retry.Backoff(attempt)); err != nil {
			return nil, err
		}
	}
	r.page = page
	if err := c.await(ctx, r, logger); err != nil {
		return page, err
	}
	return page, nil
}

// await waits for the current page's listing container, falling back to a
// reload after a backoff when the first wait fails.
func (c *Controller) await(ctx context.Context, r *run, logger *zap.Logger) error {
	page := r.page
	n := r.state.CurrentPage
	err := page.WaitReady(ctx)
	if err == nil {
		return nil
	}
	if !c.opts.Retry.ShouldRetry(err, 0) || ctx.Err() != nil {
		return c.pageFetchErr(n, err)
	}
	logger.Warn("results page not ready, reloading",
		zap.Int("page", n), zap.String("url", page.Address()), zap.Error(err))
	if err := sleep(ctx, c.opts.Retry.Backoff(0)); err != nil {
		return err
	}
	if err := page.Reload(ctx); err != nil {
		return c.pageFetchErr(n, err)
	}
	if err := page.WaitReady(ctx); err != nil {
		return c.pageFetchErr(n, err)
	}
	return nil
}

func (c *Controller) pageFetchErr(n int, err error) error {
	if crawler.IsFatal(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: page %d: %w", crawler.ErrPageFetch, n, err)
}

// processPage enumerates listings on the current page and evaluates them in order.
func (c *Controller) processPage(ctx context.Context, r *run, logger *zap.Logger) error {
	n := r.state.CurrentPage
	pageStart := c.opts.Clock.Now()
	r.state.LastPageURL = r.page.Address()
	c.emit(r, progress.Event{Stage: progress.StagePageStart, Page: n, URL: r.state.LastPageURL})
	logger.Info("processing results page", zap.Int("page", n), zap.String("url", r.state.LastPageURL))

	if err := sleep(ctx, c.opts.PageSettle); err != nil {
		return err
	}

	summaries, err := r.page.Listings(ctx)
	if err != nil {
		if crawler.IsFatal(err) || ctx.Err() != nil {
			return err
		}
		logger.Warn("enumerate listings failed, treating page as empty", zap.Int("page", n), zap.Error(err))
		summaries = nil
	}
	if len(summaries) == 0 {
		logger.Info("no listings on page", zap.Int("page", n))
	}

	for _, summary := range summaries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.processListing(ctx, r, summary, logger); err != nil {
			return err
		}
	}

	r.result.PagesVisited++
	c.emit(r, progress.Event{
		Stage:    progress.StagePageDone,
		Page:     n,
		URL:      r.state.LastPageURL,
		Listings: len(summaries),
		Dur:      c.opts.Clock.Now().Sub(pageStart),
	})
	return nil
}

// processListing evaluates one summary. It returns an error only when the run
// must stop; per-listing problems are logged and skipped.
func (c *Controller) processListing(
	ctx context.Context,
	r *run,
	summary crawler.ListingSummary,
	logger *zap.Logger,
) error {
	n := r.state.CurrentPage
	fields := []zap.Field{
		zap.Int("page", n),
		zap.String("title", summary.Title),
		zap.String("url", summary.DetailURL),
	}

	if err := summary.Validate(); err != nil {
		c.skip(r, summary, SkipMissingField, err, logger, fields)
		return nil
	}
	if !r.visited.MarkIfNew(summary.DetailURL) {
		c.skip(r, summary, SkipDuplicate, nil, logger, fields)
		return nil
	}
	if c.opts.Limiter != nil {
		if err := c.opts.Limiter.Wait(ctx, summary.DetailURL); err != nil {
			return err
		}
	}

	detail, err := c.fetchDetail(ctx, summary.DetailURL, logger)
	if err != nil {
		if crawler.IsFatal(err) || ctx.Err() != nil {
			return err
		}
		c.skip(r, summary, skipReason(err), err, logger, fields)
		return nil
	}
	fields = append(fields, zap.String("phrase", detail.RecencyPhrase))
	if err := detail.Validate(); err != nil {
		c.skip(r, summary, SkipMissingField, err, logger, fields)
		return nil
	}

	eval := c.evaluator.Evaluate(summary, detail)
	r.result.Evaluated++
	fields = append(fields, zap.String("rule", string(eval.Recency.Rule)))

	if eval.Outcome != crawler.OutcomeRetain {
		if eval.Recency.Kind == recency.Unrecognized {
			logger.Warn("unrecognized recency phrase", append(fields, zap.Error(crawler.ErrUnrecognizedRecency))...)
		}
		logger.Debug("listing rejected",
			append(fields, zap.String("reason", eval.Reason()), zap.Strings("reject_hits", eval.RejectHits))...)
		c.emit(r, progress.Event{
			Stage:  progress.StageListingRejected,
			Page:   n,
			URL:    summary.DetailURL,
			Title:  summary.Title,
			Reason: eval.Reason(),
		})
		return nil
	}

	verdict := crawler.ListingVerdict{
		Title:           summary.Title,
		DetailURL:       summary.DetailURL,
		MatchedKeywords: eval.Matched,
		RecencyPhrase:   detail.RecencyPhrase,
		Outcome:         eval.Outcome,
		Page:            n,
		EvaluatedAt:     c.opts.Clock.Now(),
	}
	if err := c.opts.Sink.Persist(ctx, verdict); err != nil {
		if !errors.Is(err, crawler.ErrPersist) {
			err = fmt.Errorf("%w: %w", crawler.ErrPersist, err)
		}
		logger.Error("persist retained listing", append(fields, zap.Error(err))...)
		return err
	}
	r.state.RetainedCount++
	r.result.Retained = r.state.RetainedCount
	logger.Info("listing retained", append(fields, zap.Strings("matched", eval.Matched))...)
	c.emit(r, progress.Event{
		Stage: progress.StageListingRetained,
		Page:  n,
		URL:   summary.DetailURL,
		Title: summary.Title,
	})
	return nil
}

// fetchDetail opens an isolated scope for url. The scope is closed on every path.
func (c *Controller) fetchDetail(ctx context.Context, url string, logger *zap.Logger) (crawler.ListingDetail, error) {
	scope, err := c.opts.Source.OpenDetail(ctx)
	if err != nil {
		return crawler.ListingDetail{}, fmt.Errorf("open detail scope: %w", err)
	}
	defer func() {
		if err := scope.Close(); err != nil {
			logger.Warn("close detail scope", zap.String("url", url), zap.Error(err))
		}
	}()

	detail, err := scope.Fetch(ctx, url)
	if err != nil {
		return crawler.ListingDetail{}, fmt.Errorf("fetch detail: %w", err)
	}
	if err := sleep(ctx, c.opts.DetailSettle); err != nil {
		return crawler.ListingDetail{}, err
	}
	return detail, nil
}

// advance navigates the current page to the next page number. Navigation gets
// one retry. An unchanged address yields ErrNavigationStall.
func (c *Controller) advance(ctx context.Context, r *run, logger *zap.Logger) error {
	current := r.page.Address()
	next := r.state.CurrentPage + 1
	target, err := crawler.NextPageURL(current, next, c.opts.RequiredParams)
	if err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrPageFetch, err)
	}

	for attempt := 0; ; attempt++ {
		err = r.page.Navigate(ctx, target)
		if err == nil {
			break
		}
		if !c.opts.Retry.ShouldRetry(err, attempt) || ctx.Err() != nil {
			if crawler.IsFatal(err) || ctx.Err() != nil {
				return err
			}
			return fmt.Errorf("%w: navigate to page %d: %w", crawler.ErrPageFetch, next, err)
		}
		logger.Warn("navigation failed, retrying", zap.Int("page", next), zap.String("url", target), zap.Error(err))
		if err := sleep(ctx, c.opts.Retry.Backoff(attempt)); err != nil {
			return err
		}
	}

	if r.page.Address() == current {
		return fmt.Errorf("%w: page %d", crawler.ErrNavigationStall, next)
	}
	r.state.CurrentPage = next
	r.state.LastPageURL = r.page.Address()
	return nil
}

func (c *Controller) skip(
	r *run,
	summary crawler.ListingSummary,
	reason string,
	err error,
	logger *zap.Logger,
	fields []zap.Field,
) {
	r.result.Skipped++
	fields = append(fields, zap.String("reason", reason))
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Warn("listing skipped", fields...)
	evt := progress.Event{
		Stage:  progress.StageListingSkipped,
		Page:   r.state.CurrentPage,
		URL:    summary.DetailURL,
		Title:  summary.Title,
		Reason: reason,
	}
	if err != nil {
		evt.Note = err.Error()
	}
	c.emit(r, evt)
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, crawler.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return SkipTimeout
	case errors.Is(err, crawler.ErrMissingField):
		return SkipMissingField
	default:
		return SkipFetchError
	}
}

// snapshot stores a diagnostic capture of the current page and returns its URI.
func (c *Controller) snapshot(ctx context.Context, r *run, logger *zap.Logger) string {
	if c.opts.Artifacts == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
	defer cancel()

	data, contentType, err := r.page.Snapshot(ctx)
	if err != nil {
		logger.Warn("capture abort snapshot", zap.Error(err))
		return ""
	}
	name := path.Join(c.opts.SnapshotPrefix, r.result.RunID,
		fmt.Sprintf("page-%d%s", r.state.CurrentPage, snapshotExt(contentType)))
	uri, err := c.opts.Artifacts.PutObject(ctx, name, contentType, bytes.NewReader(data))
	if err != nil {
		logger.Warn("store abort snapshot", zap.String("path", name), zap.Error(err))
		return ""
	}
	logger.Info("abort snapshot stored", zap.String("uri", uri))
	return uri
}

func snapshotExt(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "text/html"):
		return ".html"
	default:
		return ".bin"
	}
}

func (c *Controller) finish(r *run, status crawler.RunStatus, err error, logger *zap.Logger) crawler.RunResult {
	r.result.Status = status
	r.result.State = r.state
	r.result.Err = err
	r.result.Duration = c.opts.Clock.Now().Sub(r.started)
	if r.result.Duration < 0 {
		r.result.Duration = 0
	}

	evt := progress.Event{
		Stage:  progress.StageRunDone,
		Reason: string(status),
		URL:    r.state.LastPageURL,
		Dur:    r.result.Duration,
	}
	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("page", r.state.CurrentPage),
		zap.Int("pages_visited", r.result.PagesVisited),
		zap.Int("retained", r.result.Retained),
		zap.Int("evaluated", r.result.Evaluated),
		zap.Int("skipped", r.result.Skipped),
		zap.String("output", r.result.Output),
		zap.Duration("duration", r.result.Duration),
	}
	switch {
	case status.Completed():
		logger.Info("crawl finished", fields...)
	case status == crawler.StatusCanceled:
		evt.Stage = progress.StageRunCanceled
		logger.Info("crawl canceled", fields...)
	default:
		evt.Stage = progress.StageRunAborted
		if err != nil {
			evt.Note = err.Error()
		}
		logger.Error("crawl stopped", append(fields, zap.Error(err), zap.String("snapshot", r.result.SnapshotURI))...)
	}
	c.emit(r, evt)
	return r.result
}

func (c *Controller) emit(r *run, evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(r.id)
	evt.TS = c.opts.Clock.Now()
	c.opts.Emitter.Emit(evt)
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
