package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
)

type fakePublisher struct {
	data    [][]byte
	attrs   []map[string]string
	err     error
	stopped bool
}

func (f *fakePublisher) publish(_ context.Context, data []byte, attrs map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.data = append(f.data, data)
	f.attrs = append(f.attrs, attrs)
	return "server-id", nil
}

func (f *fakePublisher) stop() { f.stopped = true }

func TestPersistPublishesJSON(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	s := &Sink{pub: pub, runID: "run-7"}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.Persist(context.Background(), crawler.ListingVerdict{
		Title:           "Go",
		DetailURL:       "https://jobs.example.com/job/1",
		MatchedKeywords: []string{"remote"},
		RecencyPhrase:   "刚刚活跃",
		Outcome:         crawler.OutcomeRetain,
		Page:            1,
		EvaluatedAt:     at,
	}))
	require.Len(t, pub.data, 1)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.data[0], &msg))
	require.Equal(t, "run-7", msg.RunID)
	require.Equal(t, "https://jobs.example.com/job/1", msg.DetailURL)
	require.Equal(t, []string{"remote"}, msg.MatchedKeywords)
	require.True(t, at.Equal(msg.EvaluatedAt))
	require.Equal(t, map[string]string{"run_id": "run-7", "outcome": "retain"}, pub.attrs[0])

	require.NoError(t, s.Close())
	require.True(t, pub.stopped)
}

func TestPersistWrapsPublishError(t *testing.T) {
	t.Parallel()

	s := &Sink{pub: &fakePublisher{err: errors.New("unavailable")}}
	err := s.Persist(context.Background(), crawler.ListingVerdict{Title: "Go"})
	require.ErrorIs(t, err, crawler.ErrPersist)
	require.ErrorContains(t, err, "unavailable")
}

func TestNewRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "run")
	require.Error(t, err)
}
