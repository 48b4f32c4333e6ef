package crawler

import (
	"context"
	"io"
	"time"
)

// Source opens results pages and isolated detail scopes. Implementations own
// rendering, selectors, and browser sessions.
type Source interface {
	// Open navigates to url and returns a handle for the results page. It
	// does not wait for listings; callers use Page.WaitReady for that.
	Open(ctx context.Context, url string) (Page, error)
	// OpenDetail acquires an isolated context for one listing detail.
	OpenDetail(ctx context.Context) (DetailScope, error)
}

// Page is a live results page.
type Page interface {
	// WaitReady blocks until the listing container is present.
	WaitReady(ctx context.Context) error
	// Reload re-requests the current address as the fallback fetch strategy.
	Reload(ctx context.Context) error
	// Listings enumerates the summaries on the page in display order.
	Listings(ctx context.Context) ([]ListingSummary, error)
	// Address returns the page's current address.
	Address() string
	// Navigate requests address in place.
	Navigate(ctx context.Context, address string) error
	// Snapshot captures a diagnostic artifact and its content type.
	Snapshot(ctx context.Context) ([]byte, string, error)
	// Close releases the page.
	Close() error
}

// DetailScope is a single-use detail fetch context. Close is always called.
type DetailScope interface {
	Fetch(ctx context.Context, url string) (ListingDetail, error)
	Close() error
}

// ResultSink persists retained verdicts. Each Persist call is durable on return.
type ResultSink interface {
	Persist(ctx context.Context, verdict ListingVerdict) error
	Close() error
}

// ArtifactStore stores diagnostic artifacts and returns a URI.
type ArtifactStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Limiter paces requests against the listing site.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes stable digests for listing keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
