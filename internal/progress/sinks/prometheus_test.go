package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/remote-job-crawler/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageListingRetained, Page: 1},
		{RunID: runID, TS: now, Stage: progress.StageListingRejected, Page: 1, Reason: "reject_keyword"},
		{RunID: runID, TS: now, Stage: progress.StageListingSkipped, Page: 1, Reason: "missing_field"},
		{RunID: runID, TS: now, Stage: progress.StagePageDone, Page: 1, Dur: 3 * time.Second},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Reason: "completed_page_limit", Dur: time.Minute},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("completed_page_limit")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesVisited))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.listings.WithLabelValues("retained", "")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.listings.WithLabelValues("rejected", "reject_keyword")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.listings.WithLabelValues("skipped", "missing_field")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.pageDuration, "jobcrawler_page_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "jobcrawler_run_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestPrometheusSinkCountsCanceledRuns(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunCanceled, Reason: "canceled"},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("canceled")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("aborted")))
}
