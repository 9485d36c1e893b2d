// Package tools provides the external capabilities granted to agents: a web
// search restricted to owasp.org (Serper API) and a page scraper that reduces
// HTML to readable text.
package tools
