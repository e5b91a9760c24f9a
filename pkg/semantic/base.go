// Package semantic defines the contracts for the engine's external
// collaborators: semantic similarity, summarization, and tagging.
//
// The engine treats all three as pluggable black boxes. Implementations may
// block (network calls) and must honor context cancellation; the engine never
// assumes synchronous completion.
package semantic

import "context"

// SimilarityProvider computes semantic similarity between two texts.
//
// Contract: the result is in [0, 1], symmetric, deterministic for identical
// inputs, and 0 for empty input rather than an error. Out-of-range or failed
// results are treated by callers as similarity 0 (forcing create-new), never
// surfaced to end users.
type SimilarityProvider interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// Summarizer produces a compressed summary of one or more texts; used for
// batch merges and FULL→SUMMARY tier compression.
//
// Contract: bounded output length; an empty input list yields an empty
// string, not an error.
type Summarizer interface {
	Summarize(ctx context.Context, texts []string) (string, error)
}

// Tagger reduces a text to a list of tags; used for SUMMARY→TAG compression.
type Tagger interface {
	Tagify(ctx context.Context, text string) ([]string, error)
}

// Provider bundles the three collaborator contracts. Engine construction
// takes one Provider; the lexical implementation serves offline and test use,
// the openai implementation backs production deployments.
type Provider interface {
	SimilarityProvider
	Summarizer
	Tagger
}
