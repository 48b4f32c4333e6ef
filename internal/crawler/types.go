package crawler

import (
	"strings"
	"time"
)

// Outcome is the final decision for a single listing.
type Outcome string

// Listing outcomes. Only OutcomeRetain is ever persisted.
const (
	OutcomeRetain Outcome = "retain"
	OutcomeReject Outcome = "reject"
)

// ListingSummary is the lightweight card enumerated from a results page.
type ListingSummary struct {
	Title     string `json:"title"`
	DetailURL string `json:"detail_url"`
}

// Validate reports which required summary field is missing, if any.
func (s ListingSummary) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return missingField("title")
	}
	if strings.TrimSpace(s.DetailURL) == "" {
		return missingField("detail link")
	}
	return nil
}

// ListingDetail is the text pulled from a listing's detail page.
type ListingDetail struct {
	DetailText    string `json:"detail_text"`
	RecencyPhrase string `json:"recency_phrase"`
}

// Validate reports which required detail field is missing, if any.
func (d ListingDetail) Validate() error {
	if strings.TrimSpace(d.RecencyPhrase) == "" {
		return missingField("recency phrase")
	}
	if strings.TrimSpace(d.DetailText) == "" {
		return missingField("detail text")
	}
	return nil
}

// ListingVerdict is what the controller hands to a ResultSink.
type ListingVerdict struct {
	Title           string    `json:"title"`
	DetailURL       string    `json:"detail_url"`
	MatchedKeywords []string  `json:"matched_keywords"`
	RecencyPhrase   string    `json:"recency_phrase"`
	Outcome         Outcome   `json:"outcome"`
	Page            int       `json:"page"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
}

// Configuration is the immutable per-run crawl configuration.
type Configuration struct {
	Keyword           string
	AcceptKeywords    []string
	RejectKeywords    []string
	PageLimit         int
	DaysLimit         int
	OutputDestination string
}

// CrawlState tracks page progress. It is owned by a single controller run.
type CrawlState struct {
	CurrentPage   int
	PageLimit     int
	RetainedCount int
	LastPageURL   string
}

// RunStatus is the terminal state of a crawl run.
type RunStatus string

// Terminal run states.
const (
	StatusPageLimitReached RunStatus = "completed_page_limit"
	StatusNoFurtherPage    RunStatus = "completed_no_further_page"
	StatusAborted          RunStatus = "aborted"
	StatusCanceled         RunStatus = "canceled"
)

// Completed reports whether the status is a normal completion.
func (s RunStatus) Completed() bool {
	return s == StatusPageLimitReached || s == StatusNoFurtherPage
}

// RunResult summarizes a finished run for the caller.
type RunResult struct {
	RunID  string
	Status RunStatus
	// State is the crawl state at termination.
	State        CrawlState
	PagesVisited int
	Retained     int
	Evaluated    int
	Skipped      int
	Output       string
	SnapshotURI  string
	Err          error
	Duration     time.Duration
}
