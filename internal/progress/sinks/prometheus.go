package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/remote-job-crawler/internal/progress"
)

// PrometheusSink exports crawl progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	pagesVisited prometheus.Counter
	pageDuration prometheus.Histogram
	listings     *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobcrawler_runs_started_total",
			Help: "Crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcrawler_runs_finished_total",
			Help: "Crawl runs finished partitioned by terminal status.",
		}, []string{"status"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobcrawler_runs_active",
			Help: "Crawl runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobcrawler_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"status"}),
		pagesVisited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobcrawler_pages_visited_total",
			Help: "Results pages fully processed.",
		}),
		pageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobcrawler_page_duration_seconds",
			Help:    "Time spent on one results page including detail fetches.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		listings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobcrawler_listings_total",
			Help: "Listings processed partitioned by outcome and reason.",
		}, []string{"outcome", "reason"}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted, s.runsCompleted, s.runsActive, s.runDuration,
		s.pagesVisited, s.pageDuration, s.listings,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.runsActive.Inc()
	case progress.StageRunDone, progress.StageRunAborted, progress.StageRunCanceled:
		status := evt.Reason
		if status == "" {
			status = "unknown"
		}
		s.runsCompleted.WithLabelValues(status).Inc()
		s.runsActive.Dec()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(status).Observe(evt.Dur.Seconds())
		}
	case progress.StagePageDone:
		s.pagesVisited.Inc()
		if evt.Dur > 0 {
			s.pageDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageListingRetained:
		s.listings.WithLabelValues("retained", "").Inc()
	case progress.StageListingRejected:
		s.listings.WithLabelValues("rejected", evt.Reason).Inc()
	case progress.StageListingSkipped:
		s.listings.WithLabelValues("skipped", evt.Reason).Inc()
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
