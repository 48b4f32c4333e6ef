// Package crawler defines the domain types, collaborator interfaces, and error
// taxonomy shared by the listing evaluator, the crawl controller, the page
// sources, and the result sinks.
package crawler
