package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the crawl milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart        Stage = "RUN_START"
	StagePageStart       Stage = "PAGE_START"
	StagePageDone        Stage = "PAGE_DONE"
	StageListingRetained Stage = "LISTING_RETAINED"
	StageListingRejected Stage = "LISTING_REJECTED"
	StageListingSkipped  Stage = "LISTING_SKIPPED"
	StageRunDone         Stage = "RUN_DONE"
	StageRunAborted      Stage = "RUN_ABORTED"
	StageRunCanceled     Stage = "RUN_CANCELED"
)

// Event captures a single crawl milestone.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Page is the results page number the event belongs to; zero for run events.
	Page int
	// URL is the page or listing address.
	URL   string
	Title string
	// Listings is the number of summaries enumerated, set on PAGE_DONE.
	Listings int
	// Reason is a short machine label: a reject reason, skip cause, or terminal status.
	Reason string
	// Dur captures page or run latency.
	Dur time.Duration
	// Note carries low-volume debug context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunAborted, StageRunCanceled:
	case StagePageStart, StagePageDone, StageListingRetained, StageListingRejected, StageListingSkipped:
		if e.Page < 1 {
			return fmt.Errorf("%s requires page >= 1", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID back to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
