package static

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
	"github.com/JakeFAU/remote-job-crawler/internal/source/extract"
)

const resultsPage = `<html><body>
<ul class="job-list-box">
  <li class="job-card-wrapper"><a class="job-card-left" href="/job_detail/a1.html"><span class="job-name">Go 工程师</span></a></li>
  <li class="job-card-wrapper"><a class="job-card-left" href="/job_detail/b2.html"><span class="job-name">小程序开发</span></a></li>
</ul>
</body></html>`

const detailPage = `<html><body>
<div class="job-detail">
  <span class="time">3日内活跃</span>
  <div class="job-detail-section">支持远程办公</div>
</div>
</body></html>`

type site struct {
	*httptest.Server
	listHits atomic.Int32
	blank    atomic.Bool
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{}
	mux := http.NewServeMux()
	mux.HandleFunc("/web/geek/job", func(w http.ResponseWriter, _ *http.Request) {
		s.listHits.Add(1)
		if s.blank.Load() {
			_, _ = w.Write([]byte(`<html><body><p>verifying</p></body></html>`))
			return
		}
		_, _ = w.Write([]byte(resultsPage))
	})
	mux.HandleFunc("/job_detail/a1.html", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(detailPage))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newSource(t *testing.T, timeout time.Duration) *Source {
	t.Helper()
	src, err := New(Config{Timeout: timeout, Selectors: extract.DefaultSelectors(), UserAgent: "jobcrawler-test"})
	require.NoError(t, err)
	return src
}

func TestOpenEnumerateAndDetail(t *testing.T) {
	t.Parallel()

	s := newSite(t)
	src := newSource(t, time.Second)
	ctx := context.Background()

	page, err := src.Open(ctx, s.URL+"/web/geek/job?query=remote&page=1")
	require.NoError(t, err)
	defer func() { require.NoError(t, page.Close()) }()

	require.NoError(t, page.WaitReady(ctx))
	assert.Equal(t, s.URL+"/web/geek/job?query=remote&page=1", page.Address())

	listings, err := page.Listings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "Go 工程师", listings[0].Title)
	assert.Equal(t, s.URL+"/job_detail/a1.html", listings[0].DetailURL)

	scope, err := src.OpenDetail(ctx)
	require.NoError(t, err)
	detail, err := scope.Fetch(ctx, listings[0].DetailURL)
	require.NoError(t, err)
	require.NoError(t, scope.Close())
	assert.Equal(t, "3日内活跃", detail.RecencyPhrase)
	assert.Contains(t, detail.DetailText, "远程")

	body, contentType, err := page.Snapshot(ctx)
	require.NoError(t, err)
	assert.Contains(t, contentType, "text/html")
	assert.Contains(t, string(body), "job-list-box")
}

func TestWaitReadyWithoutContainerTimesOutAndReloadRefetches(t *testing.T) {
	t.Parallel()

	s := newSite(t)
	s.blank.Store(true)
	src := newSource(t, time.Second)
	ctx := context.Background()

	page, err := src.Open(ctx, s.URL+"/web/geek/job")
	require.NoError(t, err)
	require.ErrorIs(t, page.WaitReady(ctx), crawler.ErrTimeout)

	s.blank.Store(false)
	require.NoError(t, page.Reload(ctx))
	require.NoError(t, page.WaitReady(ctx))
	assert.EqualValues(t, 2, s.listHits.Load())
}

func TestNavigateReplacesDocument(t *testing.T) {
	t.Parallel()

	s := newSite(t)
	src := newSource(t, time.Second)
	ctx := context.Background()

	page, err := src.Open(ctx, s.URL+"/web/geek/job?page=1")
	require.NoError(t, err)
	require.NoError(t, page.Navigate(ctx, s.URL+"/web/geek/job?page=2"))
	assert.Equal(t, s.URL+"/web/geek/job?page=2", page.Address())
}

func TestHTTPErrorsSurface(t *testing.T) {
	t.Parallel()

	s := newSite(t)
	src := newSource(t, time.Second)

	_, err := src.Open(context.Background(), s.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.NotErrorIs(t, err, crawler.ErrTimeout)
}

func TestSlowResponseIsTimeout(t *testing.T) {
	t.Parallel()

	s := newSite(t)
	src := newSource(t, 50*time.Millisecond)

	scope, err := src.OpenDetail(context.Background())
	require.NoError(t, err)
	_, err = scope.Fetch(context.Background(), s.URL+"/slow")
	require.ErrorIs(t, err, crawler.ErrTimeout)
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	s := newSite(t)
	src := newSource(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Open(ctx, s.URL+"/web/geek/job")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewValidatesSelectors(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestClosedPageHasNoSnapshot(t *testing.T) {
	t.Parallel()

	s := newSite(t)
	src := newSource(t, time.Second)
	page, err := src.Open(context.Background(), s.URL+"/web/geek/job")
	require.NoError(t, err)
	require.NoError(t, page.Close())

	_, _, err = page.Snapshot(context.Background())
	require.Error(t, err)
	_, err = page.Listings(context.Background())
	require.ErrorIs(t, err, crawler.ErrMissingField)
}
