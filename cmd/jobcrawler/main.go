package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/remote-job-crawler/internal/app"
	"github.com/JakeFAU/remote-job-crawler/internal/config"
	"github.com/JakeFAU/remote-job-crawler/internal/logging"
)

const shutdownTimeout = 15 * time.Second

// Exit codes.
const (
	exitOK       = 0
	exitAborted  = 1
	exitUsage    = 2
	exitCanceled = 130
)

type options struct {
	configPath string
	set        map[string]bool

	keyword  string
	accept   string
	reject   string
	pages    int
	days     int
	output   string
	source   string
	headful  bool
	serve    bool
	logLevel string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("jobcrawler", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.keyword, "keyword", "", "Search keyword")
	fs.StringVar(&opts.accept, "accept", "", "Comma-separated accept keywords")
	fs.StringVar(&opts.reject, "reject", "", "Comma-separated reject keywords")
	fs.IntVar(&opts.pages, "pages", 0, "Maximum results pages to crawl")
	fs.IntVar(&opts.days, "days", 0, "Recency window in days")
	fs.StringVar(&opts.output, "output", "", "Output file for retained listings")
	fs.StringVar(&opts.source, "source", "", "Page source: headless or static")
	fs.BoolVar(&opts.headful, "headful", false, "Show the browser window")
	fs.BoolVar(&opts.serve, "serve", false, "Expose /healthz, /metrics and /v1/status during the run")
	fs.StringVar(&opts.logLevel, "log-level", "", "Minimum log level")
	if err := fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parse flags: %w", err)
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	opts.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, nil
}

// apply overlays explicitly set flags on cfg and revalidates it.
func (o options) apply(cfg *config.Config) error {
	if o.set["keyword"] {
		cfg.Search.Keyword = o.keyword
	}
	if o.set["accept"] {
		cfg.Filter.AcceptKeywords = splitList(o.accept)
	}
	if o.set["reject"] {
		cfg.Filter.RejectKeywords = splitList(o.reject)
	}
	if o.set["pages"] {
		cfg.Crawl.PageLimit = o.pages
	}
	if o.set["days"] {
		cfg.Filter.DaysLimit = o.days
	}
	if o.set["output"] {
		cfg.Output.Path = o.output
	}
	if o.set["source"] {
		cfg.Source.Kind = o.source
	}
	if o.set["headful"] {
		cfg.Source.Headless = !o.headful
	}
	if o.set["serve"] {
		cfg.Server.Enabled = o.serve
	}
	if o.set["log-level"] {
		cfg.Logging.Level = o.logLevel
	}
	return cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return exitUsage
	}
	if err := opts.apply(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitUsage
	}

	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return exitUsage
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil && !errors.Is(syncErr, syscall.EINVAL) {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("application build failed", zap.Error(err))
		return exitAborted
	}

	result := a.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}

	logger.Info("run summary",
		zap.String("run_id", result.RunID),
		zap.String("status", string(result.Status)),
		zap.Int("pages_visited", result.PagesVisited),
		zap.Int("retained", result.Retained),
		zap.String("output", result.Output),
		zap.String("snapshot", result.SnapshotURI),
	)
	return exitCode(result.Status.Completed(), ctx.Err() != nil)
}

func exitCode(completed, canceled bool) int {
	switch {
	case completed:
		return exitOK
	case canceled:
		return exitCanceled
	default:
		return exitAborted
	}
}
