package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/remote-job-crawler/internal/progress"
)

// RunStatus is a point-in-time view of the current or most recent run.
type RunStatus struct {
	RunID        string    `json:"run_id,omitempty"`
	State        string    `json:"state"`
	CurrentPage  int       `json:"current_page"`
	PagesVisited int       `json:"pages_visited"`
	Retained     int       `json:"retained"`
	Rejected     int       `json:"rejected"`
	Skipped      int       `json:"skipped"`
	LastURL      string    `json:"last_url,omitempty"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
	Note         string    `json:"note,omitempty"`
}

// Run states reported before a terminal status is known.
const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// StatusSink folds events into a RunStatus snapshot.
type StatusSink struct {
	mu     sync.RWMutex
	status RunStatus
}

// NewStatusSink returns a sink reporting an idle crawler.
func NewStatusSink() *StatusSink {
	return &StatusSink{status: RunStatus{State: StateIdle}}
}

// Snapshot returns a copy of the current status.
func (s *StatusSink) Snapshot() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Consume applies batch in order.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *StatusSink) apply(evt progress.Event) {
	st := &s.status
	switch evt.Stage {
	case progress.StageRunStart:
		*st = RunStatus{
			RunID:     evt.RunUUID().String(),
			State:     StateRunning,
			StartedAt: evt.TS,
		}
	case progress.StagePageStart:
		st.CurrentPage = evt.Page
		st.LastURL = evt.URL
	case progress.StagePageDone:
		st.PagesVisited++
	case progress.StageListingRetained:
		st.Retained++
	case progress.StageListingRejected:
		st.Rejected++
	case progress.StageListingSkipped:
		st.Skipped++
	case progress.StageRunDone, progress.StageRunAborted, progress.StageRunCanceled:
		st.State = evt.Reason
		st.FinishedAt = evt.TS
		st.Note = evt.Note
	}
}

// Close implements progress.Sink.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
