// Package agent answers questions about a live codebase.
//
// An Agent drives each query through a fixed sequence of stages:
//
//	observe → plan → route → use_tools → generate → assess_confidence → format_output
//
// The only branch is route, which skips use_tools when the plan needs no tools.
// Every stage reads and writes named fields of a QueryState owned by that
// query alone, and appends one trace entry describing what it did.
//
// Collaborators (semantic index, text generator, tool registry) are injected,
// so concurrent Answer calls are safe whenever they are.
//
// The package also builds the LLM client used for generation: a provider
// client from internal/llmimpl wrapped in the metrics, circuit breaker, retry
// and timeout middleware.
package agent
