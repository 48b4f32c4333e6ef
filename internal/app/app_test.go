package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/remote-job-crawler/internal/config"
	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
	"github.com/JakeFAU/remote-job-crawler/internal/progress/sinks"
	localstorage "github.com/JakeFAU/remote-job-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/remote-job-crawler/internal/storage/memory"
)

type job struct {
	id, title, phrase, text string
}

var jobSite = map[string][]job{
	"1": {
		{id: "a1", title: "小程序开发 远程", phrase: "3日内活跃", text: "本岗位支持远程办公"},
		{id: "b2", title: "小程序开发 驻场", phrase: "刚刚活跃", text: "不支持远程，必须到岗"},
		{id: "c3", title: "小程序开发 旧岗", phrase: "半年前活跃", text: "可远程"},
	},
	"2": {
		{id: "d4", title: "前端 兼职", phrase: "本周活跃", text: "兼职 弹性办公"},
		{id: "a1", title: "小程序开发 远程", phrase: "3日内活跃", text: "本岗位支持远程办公"},
	},
}

func newJobSite(t *testing.T) *httptest.Server {
	t.Helper()
	details := map[string]job{}
	for _, jobs := range jobSite {
		for _, j := range jobs {
			details[j.id] = j
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/web/geek/job", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "" {
			page = "1"
		}
		var b strings.Builder
		b.WriteString(`<html><body><ul class="job-list-box">`)
		for _, j := range jobSite[page] {
			fmt.Fprintf(&b, `<li class="job-card-wrapper"><a class="job-card-left" href="/job_detail/%s.html"><span class="job-name">%s</span></a></li>`, j.id, j.title)
		}
		b.WriteString(`</ul></body></html>`)
		_, _ = w.Write([]byte(b.String()))
	})
	mux.HandleFunc("/job_detail/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/job_detail/"), ".html")
		j, ok := details[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `<html><body><div class="job-detail"><span class="time">%s</span><div class="job-detail-section">%s</div></div></body></html>`, j.phrase, j.text)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func staticConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Search.BaseURL = baseURL
	cfg.Source.Kind = config.SourceStatic
	cfg.Crawl.PageLimit = 2
	cfg.Crawl.PageSettle = 0
	cfg.Crawl.DetailSettle = 0
	cfg.Crawl.DetailRPS = 0
	cfg.Crawl.PageTimeout = 2 * time.Second
	cfg.Crawl.RetryBaseDelay = time.Millisecond
	cfg.Crawl.RetryMaxDelay = 5 * time.Millisecond
	cfg.Output.Path = filepath.Join(t.TempDir(), "out", "matched_jobs.txt")
	cfg.Output.SnapshotDir = filepath.Join(t.TempDir(), "diagnostics")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunStaticCrawlEndToEnd(t *testing.T) {
	t.Parallel()

	site := newJobSite(t)
	cfg := staticConfig(t, site.URL)
	ctx := context.Background()

	a, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)

	result := a.Run(ctx)
	require.NoError(t, result.Err)
	assert.Equal(t, crawler.StatusPageLimitReached, result.Status)
	assert.Equal(t, a.RunID(), result.RunID)
	assert.Equal(t, 2, result.PagesVisited)
	assert.Equal(t, 2, result.Retained)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, cfg.Output.Path, result.Output)

	require.NoError(t, a.Close(ctx))

	data, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "小程序开发 远程 | 远程办公, 支持远程 | 3日内活跃 | "+site.URL+"/job_detail/a1.html", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "前端 兼职 | 兼职, 弹性办公 | 本周活跃 | "))

	status := a.Status()
	assert.Equal(t, string(crawler.StatusPageLimitReached), status.State)
	assert.Equal(t, 2, status.Retained)
	assert.Equal(t, 2, status.Rejected)
	assert.Equal(t, 1, status.Skipped)
}

func TestRunAbortsWhenResultsNeverLoad(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/web/geek/job", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>请完成验证</p></body></html>`))
	})
	site := httptest.NewServer(mux)
	t.Cleanup(site.Close)

	cfg := staticConfig(t, site.URL)
	ctx := context.Background()

	a, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	result := a.Run(ctx)
	require.NoError(t, a.Close(ctx))

	assert.Equal(t, crawler.StatusAborted, result.Status)
	require.ErrorIs(t, result.Err, crawler.ErrPageFetch)
	require.True(t, strings.HasPrefix(result.SnapshotURI, "file://"), result.SnapshotURI)
	snapshot, err := os.ReadFile(strings.TrimPrefix(result.SnapshotURI, "file://"))
	require.NoError(t, err)
	assert.Contains(t, string(snapshot), "请完成验证")
}

func TestBuildFailsOnUnwritableOutput(t *testing.T) {
	t.Parallel()

	cfg := staticConfig(t, "https://example.com")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	cfg.Output.Path = filepath.Join(blocker, "matched_jobs.txt")

	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open output file")
}

func TestStatusBeforeRunIsIdle(t *testing.T) {
	t.Parallel()

	cfg := staticConfig(t, "https://example.com")
	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.Equal(t, sinks.StateIdle, a.Status().State)
}

func TestSnapshotStorageSelection(t *testing.T) {
	t.Parallel()

	cfg := staticConfig(t, "https://example.com")
	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	assert.IsType(t, &localstorage.BlobStore{}, a.artifacts)
	assert.DirExists(t, cfg.Output.SnapshotDir)

	cfg = staticConfig(t, "https://example.com")
	cfg.Output.SnapshotDir = ""
	b, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	assert.IsType(t, &memorystorage.BlobStore{}, b.artifacts)
}
