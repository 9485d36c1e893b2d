// Package mcp serves the review pipeline over the Model Context Protocol on
// stdio, so editors and agents can request a review as a tool call.
package mcp
