// Package web serves the browser form for submitting a file for review.
//
// Routes:
//
//	GET  /              upload form
//	POST /review        run the pipeline on the uploaded file
//	GET  /reports/{id}  download a finished report as plain text
//	GET  /metrics       Prometheus metrics
//	GET  /healthz       liveness
//
// Only one review runs at a time; a second submission receives 409.
package web
