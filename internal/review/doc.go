// Package review interprets the raw text produced by the review stages.
//
// Agent output is generative and frequently malformed, so [Parse] never
// fails: it returns a [Parsed] result carrying either the decoded JSON value
// or the reason decoding failed. [Summarize] derives the headline metrics
// (critical and minor issue counts, highest risk, security gate) with
// independent fallbacks to [Unknown], and [DecodeQuality] / [DecodeSecurity]
// build typed views for display. [DetectDisposition] reads the merge decision
// out of the tech lead's free-text answer.
package review
