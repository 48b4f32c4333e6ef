// Package evaluator combines the recency and keyword classifiers into a
// single retain or reject decision per listing.
package evaluator

import (
	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
	"github.com/JakeFAU/remote-job-crawler/internal/keyword"
	"github.com/JakeFAU/remote-job-crawler/internal/recency"
)

// Criteria holds the per-run filter inputs.
type Criteria struct {
	Accept    keyword.Set
	Reject    keyword.Set
	DaysLimit int
}

// NewCriteria builds Criteria from configuration, applying the default
// keyword lists when the configured lists are empty.
func NewCriteria(cfg crawler.Configuration) Criteria {
	return Criteria{
		Accept:    keyword.NewSet(cfg.AcceptKeywords, keyword.DefaultAccept),
		Reject:    keyword.NewSet(cfg.RejectKeywords, keyword.DefaultReject),
		DaysLimit: cfg.DaysLimit,
	}
}

// Evaluation explains a single decision.
type Evaluation struct {
	Outcome    crawler.Outcome
	Matched    []string
	Recency    recency.Verdict
	RejectHits []string
}

// Reason is a short label for why a listing was rejected. Empty when retained.
func (e Evaluation) Reason() string {
	switch {
	case e.Outcome == crawler.OutcomeRetain:
		return ""
	case e.Recency.Kind == recency.Unrecognized:
		return "recency_unrecognized"
	case e.Recency.Kind == recency.OutsideWindow:
		return "recency_outside_window"
	case len(e.RejectHits) > 0:
		return "reject_keyword"
	default:
		return "no_accept_keyword"
	}
}

// Evaluator is stateless and safe for concurrent use.
type Evaluator struct {
	criteria Criteria
}

// New returns an Evaluator for criteria.
func New(criteria Criteria) *Evaluator {
	return &Evaluator{criteria: criteria}
}

// Evaluate decides whether a listing is retained. Recency is checked first and
// an unrecognized phrase never retains; keywords are consulted only for
// listings inside the window.
func (e *Evaluator) Evaluate(_ crawler.ListingSummary, detail crawler.ListingDetail) Evaluation {
	verdict := recency.Classify(detail.RecencyPhrase, e.criteria.DaysLimit)
	if !verdict.Within() {
		return Evaluation{Outcome: crawler.OutcomeReject, Recency: verdict}
	}

	res := keyword.Classify(detail.DetailText, e.criteria.Accept, e.criteria.Reject)
	eval := Evaluation{Recency: verdict, RejectHits: res.RejectHits, Outcome: crawler.OutcomeReject}
	if res.Accepted {
		eval.Outcome = crawler.OutcomeRetain
		eval.Matched = res.Matched
	}
	return eval
}
