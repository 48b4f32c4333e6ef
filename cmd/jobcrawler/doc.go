// Command jobcrawler searches a job board for one keyword, visits every
// listing on up to N results pages, and appends the listings that are recent
// and remote-friendly to a text file.
//
// Configuration comes from defaults, an optional YAML file (-config), and
// JOBCRAWLER_* environment variables; the flags below override all three.
//
//	jobcrawler -keyword 小程序开发 -pages 5 -days 7 -output matched_jobs.txt
//
// The process exits 0 when the crawl completes, 1 when it aborts, and 130
// when interrupted.
package main
