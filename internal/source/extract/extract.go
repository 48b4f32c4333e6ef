// Package extract pulls listing summaries and detail fields out of rendered
// HTML using ordered selector fallbacks. Both page sources share it.
package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
)

// Selectors names the DOM hooks for results and detail pages. Slice fields
// are fallbacks tried in order.
type Selectors struct {
	ListContainer string   `mapstructure:"list_container"`
	Card          string   `mapstructure:"card"`
	Title         []string `mapstructure:"title"`
	Link          []string `mapstructure:"link"`
	DetailReady   string   `mapstructure:"detail_ready"`
	Recency       []string `mapstructure:"recency"`
	DetailText    []string `mapstructure:"detail_text"`
}

// DefaultSelectors matches the zhipin.com markup.
func DefaultSelectors() Selectors {
	return Selectors{
		ListContainer: ".job-list-box",
		Card:          ".job-card-wrapper",
		Title:         []string{".job-name", ".job-title"},
		Link:          []string{"a.job-card-left", `a[ka="job-item"]`, "a"},
		DetailReady:   ".job-detail",
		Recency:       []string{".job-detail .time", ".detail-content .time", ".update-time", `span[class*="time"]`},
		DetailText:    []string{".job-detail-section"},
	}
}

// Validate reports a missing required selector.
func (s Selectors) Validate() error {
	var errs []error
	if strings.TrimSpace(s.ListContainer) == "" {
		errs = append(errs, errors.New("selectors.list_container is required"))
	}
	if strings.TrimSpace(s.Card) == "" {
		errs = append(errs, errors.New("selectors.card is required"))
	}
	if strings.TrimSpace(s.DetailReady) == "" {
		errs = append(errs, errors.New("selectors.detail_ready is required"))
	}
	for name, list := range map[string][]string{
		"title": s.Title, "link": s.Link, "recency": s.Recency, "detail_text": s.DetailText,
	} {
		if len(list) == 0 {
			errs = append(errs, fmt.Errorf("selectors.%s needs at least one selector", name))
		}
	}
	return errors.Join(errs...)
}

// recencyHints mark text that looks like an activity or publish time.
var recencyHints = []string{"活跃", "发布", "更新"}

// Parse reads an HTML document.
func Parse(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// HasListings reports whether the listing container is present.
func HasListings(doc *goquery.Document, sel Selectors) bool {
	return doc.Find(sel.ListContainer).Length() > 0
}

// Listings returns card summaries in document order. Cards missing a title or
// link are still returned with the field empty so the caller can log and skip
// them. Relative links are resolved against base.
func Listings(doc *goquery.Document, base string, sel Selectors) ([]crawler.ListingSummary, error) {
	container := doc.Find(sel.ListContainer)
	if container.Length() == 0 {
		return nil, fmt.Errorf("%w: listing container %q", crawler.ErrMissingField, sel.ListContainer)
	}
	var out []crawler.ListingSummary
	container.Find(sel.Card).Each(func(_ int, card *goquery.Selection) {
		summary := crawler.ListingSummary{Title: firstText(card, sel.Title)}
		if href := firstAttr(card, sel.Link, "href"); href != "" {
			if link, err := crawler.ResolveLink(base, href); err == nil {
				summary.DetailURL = link
			}
		}
		out = append(out, summary)
	})
	return out, nil
}

// Detail extracts the detail text and recency phrase. For the phrase, the
// first candidate that reads like an activity time wins; otherwise the last
// non-empty candidate is used.
func Detail(doc *goquery.Document, sel Selectors) crawler.ListingDetail {
	return crawler.ListingDetail{
		DetailText:    firstText(doc.Selection, sel.DetailText),
		RecencyPhrase: recencyPhrase(doc.Selection, sel.Recency),
	}
}

func recencyPhrase(root *goquery.Selection, selectors []string) string {
	var fallback string
	for _, s := range selectors {
		text := strings.TrimSpace(root.Find(s).First().Text())
		if text == "" {
			continue
		}
		for _, hint := range recencyHints {
			if strings.Contains(text, hint) {
				return text
			}
		}
		fallback = text
	}
	return fallback
}

func firstText(root *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		if text := strings.TrimSpace(root.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(root *goquery.Selection, selectors []string, attr string) string {
	for _, s := range selectors {
		if v, ok := root.Find(s).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
