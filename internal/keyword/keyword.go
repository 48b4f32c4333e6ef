// Package keyword classifies listing detail text against accept and reject
// term sets using case-insensitive substring matching.
package keyword

import "strings"

// DefaultAccept are the remote-friendly terms used when no accept set is configured.
var DefaultAccept = []string{
	"远程办公", "远程工作", "居家办公", "在家办公", "可远程",
	"支持远程", "可在家", "可居家", "兼职", "remote", "弹性办公",
}

// DefaultReject are the on-site terms used when no reject set is configured.
var DefaultReject = []string{
	"不接受远程", "不支持远程", "不接受在家", "不支持居家",
	"不接受居家", "不支持在家", "必须坐班", "不接受兼职",
	"不支持远程办公", "不接受远程办公", "必须到岗", "必须到办公室",
}

// Set is an ordered collection of match terms.
type Set struct {
	terms  []string
	folded []string
}

// NewSet builds a Set from terms, dropping blanks and duplicates. When no
// usable term remains the fallback list is used instead.
func NewSet(terms []string, fallback []string) Set {
	s := build(terms)
	if len(s.terms) == 0 {
		s = build(fallback)
	}
	return s
}

func build(in []string) Set {
	s := Set{}
	seen := make(map[string]struct{}, len(in))
	for _, term := range in {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		folded := strings.ToLower(term)
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		s.terms = append(s.terms, term)
		s.folded = append(s.folded, folded)
	}
	return s
}

// Terms returns a copy of the set in configured order.
func (s Set) Terms() []string {
	return append([]string(nil), s.terms...)
}

// Len returns the number of terms.
func (s Set) Len() int {
	return len(s.terms)
}

// matches returns every term found in lowered text, in set order.
func (s Set) matches(lowered string) []string {
	var hits []string
	for i, f := range s.folded {
		if strings.Contains(lowered, f) {
			hits = append(hits, s.terms[i])
		}
	}
	return hits
}

// Result is the classification outcome for one detail text.
type Result struct {
	Accepted bool
	// Matched holds accept terms in accept-set order when Accepted.
	Matched []string
	// RejectHits holds every reject term found, for diagnostics.
	RejectHits []string
}

// Classify checks text against reject first, then accept. Any reject hit wins
// over accept hits; no accept hit means there is no qualifying signal.
func Classify(text string, accept, reject Set) Result {
	lowered := strings.ToLower(text)
	if hits := reject.matches(lowered); len(hits) > 0 {
		return Result{RejectHits: hits}
	}
	matched := accept.matches(lowered)
	if len(matched) == 0 {
		return Result{}
	}
	return Result{Accepted: true, Matched: matched}
}
