// Package api hosts the optional operator HTTP server:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the current or most recent crawl run.
package api
