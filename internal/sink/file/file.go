// Package file appends retained listings to a UTF-8 text file, one line per
// listing, syncing each line to disk before returning.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
)

// Sink is an append-only line writer.
type Sink struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Open opens path for appending, creating it and its parent directory if needed.
func Open(path string) (*Sink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return &Sink{f: f, path: path}, nil
}

// Path returns the output destination.
func (s *Sink) Path() string {
	return s.path
}

// Persist appends one line for v and fsyncs it.
func (s *Sink) Persist(_ context.Context, v crawler.ListingVerdict) error {
	line := FormatLine(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("%w: %s is closed", crawler.ErrPersist, s.path)
	}
	if _, err := s.f.WriteString(line); err != nil {
		return fmt.Errorf("%w: write %s: %w", crawler.ErrPersist, s.path, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", crawler.ErrPersist, s.path, err)
	}
	return nil
}

// Close closes the file. Further writes fail.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return fmt.Errorf("close output %s: %w", s.path, err)
	}
	return nil
}

// FormatLine renders v as "title | kw1, kw2 | phrase | url\n".
func FormatLine(v crawler.ListingVerdict) string {
	return strings.Join([]string{
		field(v.Title),
		field(strings.Join(v.MatchedKeywords, ", ")),
		field(v.RecencyPhrase),
		field(v.DetailURL),
	}, " | ") + "\n"
}

// fieldFolds keeps one listing on one line with exactly four fields. A literal
// separator inside a value becomes the full-width bar.
var fieldFolds = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "|", "｜")

func field(s string) string {
	return strings.TrimSpace(fieldFolds.Replace(s))
}
