package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PageParam is the query parameter carrying the results page number.
const PageParam = "page"

// SearchURL builds the first results page address for keyword.
func SearchURL(base, path, keyword string, params map[string]string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	q := u.Query()
	q.Set("query", keyword)
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NextPageURL derives the address of page next from current. The page
// parameter is injected or replaced, and every required parameter missing
// from current is restored so filters survive pagination.
func NextPageURL(current string, next int, required map[string]string) (string, error) {
	if next < 1 {
		return "", fmt.Errorf("next page must be >= 1, got %d", next)
	}
	u, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	q := u.Query()
	q.Set(PageParam, strconv.Itoa(next))
	for k, v := range required {
		if q.Get(k) == "" && v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResolveLink turns a possibly relative href into an absolute URL against base.
func ResolveLink(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", missingField("detail link")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", href, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return b.ResolveReference(ref).String(), nil
}
