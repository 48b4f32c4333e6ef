package controller

import "sync"

// visitTracker remembers detail URLs already evaluated in a run.
type visitTracker interface {
	MarkIfNew(url string) bool
}

type concurrentVisitTracker struct {
	seen sync.Map
}

func newVisitTracker() *concurrentVisitTracker {
	return &concurrentVisitTracker{}
}

// MarkIfNew records url and reports whether it was unseen. Empty URLs are never new.
func (t *concurrentVisitTracker) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	_, loaded := t.seen.LoadOrStore(url, struct{}{})
	return !loaded
}
