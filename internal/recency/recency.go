// Package recency turns a listing's "last active" phrase into a verdict about
// whether the listing falls inside the configured recency window.
package recency

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind is the coarse recency verdict.
type Kind int

// Verdict kinds. Unrecognized signals a parsing gap, not a stale listing.
const (
	Unrecognized Kind = iota
	WithinWindow
	OutsideWindow
)

func (k Kind) String() string {
	switch k {
	case WithinWindow:
		return "within_window"
	case OutsideWindow:
		return "outside_window"
	default:
		return "unrecognized"
	}
}

// Rule names the classification rule that produced a verdict.
type Rule string

// Rules in evaluation order.
const (
	RuleInstant         Rule = "instant"
	RuleDays            Rule = "days"
	RuleThisWeek        Rule = "this_week"
	RuleWeeks           Rule = "weeks"
	RuleExpired         Rule = "expired"
	RuleUnknownActivity Rule = "unknown_activity"
	RuleUnknown         Rule = "unknown"
)

// Verdict is the result of classifying one phrase.
type Verdict struct {
	Kind Kind
	Rule Rule
	// Raw is the phrase exactly as received.
	Raw string
}

// Within reports whether the verdict is WithinWindow.
func (v Verdict) Within() bool {
	return v.Kind == WithinWindow
}

const (
	daysMarker     = "日内活跃"
	thisWeekMarker = "本周活跃"
	weeksMarker    = "周内活跃"
	activityMarker = "活跃"
)

var (
	instantMarkers = []string{"刚刚活跃", "今天活跃", "今日活跃", "小时内活跃", "分钟前活跃"}
	expiredMarkers = []string{"本月活跃", "月内活跃", "半年活跃", "年活跃", "月前活跃", "半年前活跃", "年前活跃"}

	daysCount  = regexp.MustCompile(`(\d+)\s*` + daysMarker)
	weeksCount = regexp.MustCompile(`(\d+)\s*` + weeksMarker)
)

// Classify applies the ordered rules to phrase. The first matching rule wins;
// the ordering matters because several markers overlap.
func Classify(phrase string, daysLimit int) Verdict {
	p := Normalize(phrase)
	verdict := func(kind Kind, rule Rule) Verdict {
		return Verdict{Kind: kind, Rule: rule, Raw: phrase}
	}

	switch {
	case containsAny(p, instantMarkers):
		return verdict(WithinWindow, RuleInstant)
	case strings.Contains(p, daysMarker):
		n, ok := leadingCount(daysCount, p)
		if !ok {
			return verdict(Unrecognized, RuleDays)
		}
		return verdict(window(n <= int64(daysLimit)), RuleDays)
	case strings.Contains(p, thisWeekMarker):
		return verdict(WithinWindow, RuleThisWeek)
	case strings.Contains(p, weeksMarker):
		n, ok := leadingCount(weeksCount, p)
		if !ok {
			return verdict(Unrecognized, RuleWeeks)
		}
		return verdict(window(n*7 <= int64(daysLimit)), RuleWeeks)
	case containsAny(p, expiredMarkers):
		return verdict(OutsideWindow, RuleExpired)
	case strings.Contains(p, activityMarker):
		return verdict(Unrecognized, RuleUnknownActivity)
	default:
		return verdict(Unrecognized, RuleUnknown)
	}
}

// Normalize folds compatibility forms (full-width digits), trims whitespace,
// and lower-cases any Latin text.
func Normalize(phrase string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(phrase)))
}

func window(within bool) Kind {
	if within {
		return WithinWindow
	}
	return OutsideWindow
}

// leadingCount extracts the integer immediately preceding the marker.
func leadingCount(re *regexp.Regexp, p string) (int64, bool) {
	m := re.FindStringSubmatch(p)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n < 0 || n > math.MaxInt64/7 {
		return 0, false
	}
	return n, true
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
