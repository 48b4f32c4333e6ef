package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
	"github.com/JakeFAU/remote-job-crawler/internal/recency"
)

func newDefaultEvaluator(days int) *Evaluator {
	return New(NewCriteria(crawler.Configuration{DaysLimit: days}))
}

var summary = crawler.ListingSummary{Title: "小程序开发", DetailURL: "https://example.com/job/1"}

func TestEvaluateScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		detail  crawler.ListingDetail
		outcome crawler.Outcome
		reason  string
		kind    recency.Kind
	}{
		{
			name:    "retain remote within window",
			detail:  crawler.ListingDetail{DetailText: "支持远程办公", RecencyPhrase: "3日内活跃"},
			outcome: crawler.OutcomeRetain,
			kind:    recency.WithinWindow,
		},
		{
			name:    "reject keyword beats fresh recency",
			detail:  crawler.ListingDetail{DetailText: "必须坐班", RecencyPhrase: "刚刚活跃"},
			outcome: crawler.OutcomeReject,
			reason:  "reject_keyword",
			kind:    recency.WithinWindow,
		},
		{
			name:    "two weeks is outside a seven day window",
			detail:  crawler.ListingDetail{DetailText: "支持远程办公", RecencyPhrase: "2周内活跃"},
			outcome: crawler.OutcomeReject,
			reason:  "recency_outside_window",
			kind:    recency.OutsideWindow,
		},
		{
			name:    "unrecognized recency never retains",
			detail:  crawler.ListingDetail{DetailText: "支持远程办公", RecencyPhrase: "活跃度高"},
			outcome: crawler.OutcomeReject,
			reason:  "recency_unrecognized",
			kind:    recency.Unrecognized,
		},
		{
			name:    "no accept signal",
			detail:  crawler.ListingDetail{DetailText: "五险一金", RecencyPhrase: "本周活跃"},
			outcome: crawler.OutcomeReject,
			reason:  "no_accept_keyword",
			kind:    recency.WithinWindow,
		},
	}

	ev := newDefaultEvaluator(7)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ev.Evaluate(summary, tc.detail)
			require.Equal(t, tc.outcome, got.Outcome)
			require.Equal(t, tc.reason, got.Reason())
			require.Equal(t, tc.kind, got.Recency.Kind)
		})
	}
}

func TestEvaluateRetainReportsMatchedTerms(t *testing.T) {
	t.Parallel()

	got := newDefaultEvaluator(7).Evaluate(summary, crawler.ListingDetail{
		DetailText:    "支持远程办公",
		RecencyPhrase: "3日内活跃",
	})
	require.Equal(t, crawler.OutcomeRetain, got.Outcome)
	assert.Contains(t, got.Matched, "远程办公")
	assert.Empty(t, got.RejectHits)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	t.Parallel()

	ev := newDefaultEvaluator(3)
	detail := crawler.ListingDetail{DetailText: "可远程 兼职", RecencyPhrase: "今日活跃"}
	first := ev.Evaluate(summary, detail)
	for range 5 {
		require.Equal(t, first, ev.Evaluate(summary, detail))
	}
}

func TestNewCriteriaUsesConfiguredLists(t *testing.T) {
	t.Parallel()

	c := NewCriteria(crawler.Configuration{
		AcceptKeywords: []string{"golang"},
		RejectKeywords: []string{"onsite"},
		DaysLimit:      2,
	})
	require.Equal(t, []string{"golang"}, c.Accept.Terms())
	require.Equal(t, []string{"onsite"}, c.Reject.Terms())
	require.Equal(t, 2, c.DaysLimit)

	ev := New(c)
	got := ev.Evaluate(summary, crawler.ListingDetail{DetailText: "Golang role", RecencyPhrase: "1日内活跃"})
	require.Equal(t, crawler.OutcomeRetain, got.Outcome)
	require.Equal(t, []string{"golang"}, got.Matched)
}
