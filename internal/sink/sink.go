// Package sink composes result sinks. Every retained listing is written to
// each member in order; the first failure stops the write.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
)

// Fanout persists to every member sink in order.
type Fanout struct {
	members []crawler.ResultSink
}

// NewFanout builds a Fanout, skipping nil members.
func NewFanout(members ...crawler.ResultSink) *Fanout {
	f := &Fanout{}
	for _, m := range members {
		if m != nil {
			f.members = append(f.members, m)
		}
	}
	return f
}

// Persist writes v to each member. Any failure is reported as crawler.ErrPersist.
func (f *Fanout) Persist(ctx context.Context, v crawler.ListingVerdict) error {
	for i, m := range f.members {
		if err := m.Persist(ctx, v); err != nil {
			if errors.Is(err, crawler.ErrPersist) {
				return fmt.Errorf("sink %d: %w", i, err)
			}
			return fmt.Errorf("%w: sink %d: %w", crawler.ErrPersist, i, err)
		}
	}
	return nil
}

// Close closes every member and joins their errors.
func (f *Fanout) Close() error {
	var errs []error
	for _, m := range f.members {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
