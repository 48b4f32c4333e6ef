package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/remote-job-crawler/internal/progress"
)

func TestStatusSinkTracksRun(t *testing.T) {
	t.Parallel()

	sink := NewStatusSink()
	require.Equal(t, StateIdle, sink.Snapshot().State)

	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	batch := []progress.Event{
		{RunID: runID, TS: start, Stage: progress.StageRunStart},
		{RunID: runID, TS: start, Stage: progress.StagePageStart, Page: 1, URL: "https://example.com/?page=1"},
		{RunID: runID, TS: start, Stage: progress.StageListingRetained, Page: 1},
		{RunID: runID, TS: start, Stage: progress.StageListingRejected, Page: 1},
		{RunID: runID, TS: start, Stage: progress.StageListingSkipped, Page: 1},
		{RunID: runID, TS: start, Stage: progress.StagePageDone, Page: 1},
		{RunID: runID, TS: start, Stage: progress.StagePageStart, Page: 2, URL: "https://example.com/?page=2"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	got := sink.Snapshot()
	require.Equal(t, StateRunning, got.State)
	require.Equal(t, id.String(), got.RunID)
	require.Equal(t, 2, got.CurrentPage)
	require.Equal(t, 1, got.PagesVisited)
	require.Equal(t, 1, got.Retained)
	require.Equal(t, 1, got.Rejected)
	require.Equal(t, 1, got.Skipped)
	require.Equal(t, "https://example.com/?page=2", got.LastURL)

	end := start.Add(time.Minute)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: end, Stage: progress.StageRunAborted, Reason: "aborted", Note: "browser gone"},
	}))
	got = sink.Snapshot()
	require.Equal(t, "aborted", got.State)
	require.Equal(t, end, got.FinishedAt)
	require.Equal(t, "browser gone", got.Note)
}

func TestLogSinkWritesDebugEntries(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Stage: progress.StagePageDone, Page: 3},
	}))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "progress event", entry.Message)
	require.Equal(t, int64(3), entry.ContextMap()["page"])
	require.NoError(t, sink.Close(context.Background()))
}
