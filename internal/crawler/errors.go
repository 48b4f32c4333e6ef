package crawler

import (
	"errors"
	"fmt"
)

// Error taxonomy. Page sources and sinks wrap these so the controller can
// decide between skipping a listing and aborting the run with errors.Is.
var (
	// ErrUnrecognizedRecency marks a recency phrase no rule understood.
	ErrUnrecognizedRecency = errors.New("unrecognized recency phrase")
	// ErrMissingField marks an absent title, link, detail text, or recency phrase.
	ErrMissingField = errors.New("missing field")
	// ErrTimeout marks a page or detail fetch that exceeded its budget.
	ErrTimeout = errors.New("page source timeout")
	// ErrNavigationStall marks a next-page request that left the address unchanged.
	ErrNavigationStall = errors.New("navigation did not advance")
	// ErrPersist marks a result sink write failure.
	ErrPersist = errors.New("persist retained listing")
	// ErrSourceFatal marks a browser or session level failure.
	ErrSourceFatal = errors.New("page source failed")
	// ErrPageFetch marks a results page that failed after its retry.
	ErrPageFetch = errors.New("page fetch failed after retry")
)

func missingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, name)
}

// IsFatal reports whether err must stop the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSourceFatal) || errors.Is(err, ErrPageFetch) || errors.Is(err, ErrPersist)
}
