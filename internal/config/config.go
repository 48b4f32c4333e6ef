// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
	"github.com/JakeFAU/remote-job-crawler/internal/keyword"
	"github.com/JakeFAU/remote-job-crawler/internal/source/extract"
)

// EnvPrefix is prepended to every environment override, e.g.
// JOBCRAWLER_CRAWL_PAGE_LIMIT.
const EnvPrefix = "JOBCRAWLER"

// Source kinds.
const (
	SourceHeadless = "headless"
	SourceStatic   = "static"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Search  SearchConfig  `mapstructure:"search"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Source  SourceConfig  `mapstructure:"source"`
	Output  OutputConfig  `mapstructure:"output"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SearchConfig describes the first results page.
type SearchConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Path    string `mapstructure:"path"`
	Keyword string `mapstructure:"keyword"`
	City    string `mapstructure:"city"`
	JobType string `mapstructure:"job_type"`
}

// FilterConfig holds the keyword sets and the recency window.
type FilterConfig struct {
	AcceptKeywords []string `mapstructure:"accept_keywords"`
	RejectKeywords []string `mapstructure:"reject_keywords"`
	DaysLimit      int      `mapstructure:"days_limit"`
}

// CrawlConfig governs pagination, budgets, and pacing.
type CrawlConfig struct {
	PageLimit      int           `mapstructure:"page_limit"`
	PageTimeout    time.Duration `mapstructure:"page_timeout"`
	DetailTimeout  time.Duration `mapstructure:"detail_timeout"`
	PageSettle     time.Duration `mapstructure:"page_settle"`
	DetailSettle   time.Duration `mapstructure:"detail_settle"`
	DetailRPS      float64       `mapstructure:"detail_rps"`
	DetailBurst    int           `mapstructure:"detail_burst"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
}

// SourceConfig selects and configures the page source.
type SourceConfig struct {
	Kind      string            `mapstructure:"kind"`
	Headless  bool              `mapstructure:"headless"`
	UserAgent string            `mapstructure:"user_agent"`
	Selectors extract.Selectors `mapstructure:"selectors"`
}

// OutputConfig names the text output and local snapshot directory. An empty
// SnapshotDir keeps abort snapshots in memory only.
type OutputConfig struct {
	Path        string `mapstructure:"path"`
	SnapshotDir string `mapstructure:"snapshot_dir"`
}

// StorageConfig enables GCS snapshot storage when a bucket is set.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig enables the Postgres sink when a DSN is set.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig enables retained-listing notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether notifications are configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicName != ""
}

// ServerConfig controls the status/metrics HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from defaults, an optional file, and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("search.base_url", "https://www.zhipin.com")
	v.SetDefault("search.path", "/web/geek/job")
	v.SetDefault("search.keyword", "小程序开发")
	v.SetDefault("search.city", "100010000")
	v.SetDefault("search.job_type", "1903")

	v.SetDefault("filter.accept_keywords", keyword.DefaultAccept)
	v.SetDefault("filter.reject_keywords", keyword.DefaultReject)
	v.SetDefault("filter.days_limit", 7)

	v.SetDefault("crawl.page_limit", 5)
	v.SetDefault("crawl.page_timeout", 20*time.Second)
	v.SetDefault("crawl.detail_timeout", 20*time.Second)
	v.SetDefault("crawl.page_settle", 3*time.Second)
	v.SetDefault("crawl.detail_settle", time.Second)
	v.SetDefault("crawl.detail_rps", 1.0)
	v.SetDefault("crawl.detail_burst", 1)
	v.SetDefault("crawl.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("crawl.retry_max_delay", 5*time.Second)

	sel := extract.DefaultSelectors()
	v.SetDefault("source.kind", SourceHeadless)
	v.SetDefault("source.headless", true)
	v.SetDefault("source.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("source.selectors.list_container", sel.ListContainer)
	v.SetDefault("source.selectors.card", sel.Card)
	v.SetDefault("source.selectors.title", sel.Title)
	v.SetDefault("source.selectors.link", sel.Link)
	v.SetDefault("source.selectors.detail_ready", sel.DetailReady)
	v.SetDefault("source.selectors.recency", sel.Recency)
	v.SetDefault("source.selectors.detail_text", sel.DetailText)

	v.SetDefault("output.path", "matched_jobs.txt")
	v.SetDefault("output.snapshot_dir", "diagnostics")

	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "jobcrawler")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "retained_listings")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.Search.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("search.base_url must be an absolute url, got %q", c.Search.BaseURL))
	}
	if strings.TrimSpace(c.Search.Keyword) == "" {
		errs = append(errs, errors.New("search.keyword is required"))
	}
	if c.Filter.DaysLimit < 0 {
		errs = append(errs, errors.New("filter.days_limit must be >= 0"))
	}
	if c.Crawl.PageLimit < 1 {
		errs = append(errs, errors.New("crawl.page_limit must be >= 1"))
	}
	if c.Crawl.PageTimeout <= 0 || c.Crawl.DetailTimeout <= 0 {
		errs = append(errs, errors.New("crawl.page_timeout and crawl.detail_timeout must be > 0"))
	}
	if c.Crawl.PageSettle < 0 || c.Crawl.DetailSettle < 0 {
		errs = append(errs, errors.New("crawl settle delays must be >= 0"))
	}
	if c.Crawl.DetailRPS < 0 {
		errs = append(errs, errors.New("crawl.detail_rps must be >= 0"))
	}
	if c.Crawl.RetryMaxDelay < c.Crawl.RetryBaseDelay {
		errs = append(errs, errors.New("crawl.retry_max_delay must be >= crawl.retry_base_delay"))
	}
	switch c.Source.Kind {
	case SourceHeadless, SourceStatic:
	default:
		errs = append(errs, fmt.Errorf("source.kind must be %q or %q, got %q", SourceHeadless, SourceStatic, c.Source.Kind))
	}
	if err := c.Source.Selectors.Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		errs = append(errs, errors.New("output.path is required"))
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		errs = append(errs, errors.New("pubsub.project_id and pubsub.topic_name must be set together"))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

// Run produces the immutable crawl configuration.
func (c Config) Run() crawler.Configuration {
	return crawler.Configuration{
		Keyword:           c.Search.Keyword,
		AcceptKeywords:    append([]string(nil), c.Filter.AcceptKeywords...),
		RejectKeywords:    append([]string(nil), c.Filter.RejectKeywords...),
		PageLimit:         c.Crawl.PageLimit,
		DaysLimit:         c.Filter.DaysLimit,
		OutputDestination: c.Output.Path,
	}
}

// StartURL builds the first results page address.
func (c Config) StartURL() (string, error) {
	return crawler.SearchURL(c.Search.BaseURL, c.Search.Path, c.Search.Keyword, c.searchParams())
}

// RequiredParams are the query parameters every results page must carry.
func (c Config) RequiredParams() map[string]string {
	if c.Search.JobType == "" {
		return nil
	}
	return map[string]string{"jobType": c.Search.JobType}
}

func (c Config) searchParams() map[string]string {
	params := map[string]string{}
	if c.Search.City != "" {
		params["city"] = c.Search.City
	}
	if c.Search.JobType != "" {
		params["jobType"] = c.Search.JobType
	}
	return params
}
