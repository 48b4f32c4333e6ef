// Package progress carries crawl milestones from the controller to pluggable
// sinks. Events are buffered and batched on a background goroutine so the
// crawl loop never waits on metrics or logging.
package progress
