package main

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/remote-job-crawler/internal/config"
)

func loadDefaults(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	opts, err := parseFlags([]string{
		"-keyword", "golang",
		"-accept", "remote, 远程 ,",
		"-reject", "onsite",
		"-pages", "3",
		"-days", "0",
		"-output", "out.txt",
		"-source", "static",
		"-headful",
		"-serve",
	}, io.Discard)
	require.NoError(t, err)

	cfg := loadDefaults(t)
	require.NoError(t, opts.apply(&cfg))

	assert.Equal(t, "golang", cfg.Search.Keyword)
	assert.Equal(t, []string{"remote", "远程"}, cfg.Filter.AcceptKeywords)
	assert.Equal(t, []string{"onsite"}, cfg.Filter.RejectKeywords)
	assert.Equal(t, 3, cfg.Crawl.PageLimit)
	assert.Equal(t, 0, cfg.Filter.DaysLimit)
	assert.Equal(t, "out.txt", cfg.Output.Path)
	assert.Equal(t, config.SourceStatic, cfg.Source.Kind)
	assert.False(t, cfg.Source.Headless)
	assert.True(t, cfg.Server.Enabled)
}

func TestUnsetFlagsKeepConfig(t *testing.T) {
	t.Parallel()

	opts, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	cfg := loadDefaults(t)
	want := cfg
	require.NoError(t, opts.apply(&cfg))
	assert.Equal(t, want, cfg)
}

func TestInvalidOverrideFailsValidation(t *testing.T) {
	t.Parallel()

	opts, err := parseFlags([]string{"-pages", "0"}, io.Discard)
	require.NoError(t, err)
	cfg := loadDefaults(t)
	require.Error(t, opts.apply(&cfg))
}

func TestParseFlagsErrors(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"-help"}, io.Discard)
	require.ErrorIs(t, err, flag.ErrHelp)

	_, err = parseFlags([]string{"extra"}, io.Discard)
	require.Error(t, err)

	_, err = parseFlags([]string{"-pages", "many"}, io.Discard)
	require.Error(t, err)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, exitOK, exitCode(true, false))
	assert.Equal(t, exitAborted, exitCode(false, false))
	assert.Equal(t, exitCanceled, exitCode(false, true))
}
