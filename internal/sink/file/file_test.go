package file

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
)

var lineFormat = regexp.MustCompile(`^[^|\n]+ \| [^|\n]+ \| [^|\n]+ \| https://\S+$`)

func TestSinkAppendsLinesInOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "matched_jobs.txt")
	s, err := Open(path)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Persist(context.Background(), crawler.ListingVerdict{
			Title:           fmt.Sprintf("Job %d", i),
			DetailURL:       fmt.Sprintf("https://jobs.example.com/job/%d", i),
			MatchedKeywords: []string{"远程办公", "remote"},
			RecencyPhrase:   "3日内活跃",
			Outcome:         crawler.OutcomeRetain,
		}))
	}
	require.NoError(t, s.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 5)
	for i, line := range lines {
		require.Regexp(t, lineFormat, line)
		require.Equal(t,
			fmt.Sprintf("Job %d | 远程办公, remote | 3日内活跃 | https://jobs.example.com/job/%d", i+1, i+1), line)
	}
}

func TestSinkAppendsToExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "matched_jobs.txt")
	require.NoError(t, os.WriteFile(path, []byte("earlier | a | 本周活跃 | https://x.example/1\n"), 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Persist(context.Background(), crawler.ListingVerdict{
		Title: "later", MatchedKeywords: []string{"b"}, RecencyPhrase: "刚刚活跃", DetailURL: "https://x.example/2",
	}))
	require.NoError(t, s.Close())

	require.Len(t, readLines(t, path), 2)
}

func TestFormatLineFoldsNewlines(t *testing.T) {
	t.Parallel()

	got := FormatLine(crawler.ListingVerdict{
		Title:           "Go\nEngineer\r\n(remote)",
		MatchedKeywords: []string{"remote"},
		RecencyPhrase:   " 今日活跃 ",
		DetailURL:       "https://x.example/1",
	})
	require.Equal(t, "Go Engineer (remote) | remote | 今日活跃 | https://x.example/1\n", got)
}

func TestFormatLineKeepsFourFields(t *testing.T) {
	t.Parallel()

	got := FormatLine(crawler.ListingVerdict{
		Title:           "前端|小程序 | 远程",
		MatchedKeywords: []string{"远程", "a|b"},
		RecencyPhrase:   "本周|活跃",
		DetailURL:       "https://x.example/2",
	})
	require.Regexp(t, lineFormat, strings.TrimSuffix(got, "\n"))
	require.Equal(t, "前端｜小程序 ｜ 远程 | 远程, a｜b | 本周｜活跃 | https://x.example/2\n", got)
}

func TestPersistAfterCloseFails(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	err = s.Persist(context.Background(), crawler.ListingVerdict{Title: "x"})
	require.ErrorIs(t, err, crawler.ErrPersist)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(" ")
	require.Error(t, err)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	require.NoError(t, sc.Err())
	return out
}
