// Package agent defines the three review personas and runs them against a
// chat model.
//
// [NewRegistry] returns the Senior Developer, Security Engineer and Tech Lead
// descriptors. A [Runner] executes one descriptor on one task: it offers the
// descriptor's tools to the model, runs any requested tool calls, feeds the
// results back and repeats until the model answers in text or the iteration
// budget is spent.
package agent
