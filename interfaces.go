package signet

import (
	"context"
	"net/http"
)

// Embedder generates vector embeddings from text.
// When provided via WithEmbedder, replaces auto-detected Ollama/OpenAI/noop.
// App.New() wraps it in an adapter for internal use by the search engine and
// the embedding backfill loop.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Searcher is a vector search index for memories.
// When provided via WithSearcher, replaces the auto-detected Qdrant index or
// the in-process fallback.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, filters SearchFilters, limit int) ([]SearchResult, error)
	Healthy(ctx context.Context) error
}

// Judge adjudicates a detected contradiction between two memories.
// When provided via WithJudge, replaces the built-in heuristic contradiction
// check. Candidate finding (which pairs are even worth judging) still
// happens via the embedding/keyword recall path; this is only the
// confirmation step.
type Judge interface {
	Adjudicate(ctx context.Context, c Contradiction) (Verdict, error)
}

// Chain anchors a Merkle root to external, tamper-evident storage (a
// blockchain, a timestamping authority, a transparency log) and returns a
// receipt a verifier can later check against. Optional — a daemon with no
// Chain configured still builds and signs Merkle roots locally, it just has
// nothing external to point at.
type Chain interface {
	Anchor(ctx context.Context, merkleRoot string) (AnchorReceipt, error)
}

// EventHook receives async notifications when memory lifecycle events
// occur. Multiple hooks may be registered via multiple WithEventHook calls.
// Hook methods run in goroutines — they must not block indefinitely.
// Failures are logged but never fail the originating call.
type EventHook interface {
	OnMemoryWritten(ctx context.Context, m Memory) error
	OnContradictionDetected(ctx context.Context, c Contradiction, v Verdict) error
	OnPeerSynced(ctx context.Context, peerDID string, memoriesReceived int) error
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Extra routes share the mux and OTEL instrumentation with the built-in
// ones. Called once during App.New(), after all built-in routes are
// registered.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees every request including
// /health. Multiple middlewares are applied in registration order
// (first-registered = outermost).
type Middleware func(http.Handler) http.Handler
