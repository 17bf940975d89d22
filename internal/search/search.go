// Package search provides hybrid (dense + keyword) recall over memories,
// with transparent fallback when an index is unavailable.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
	"github.com/signet-ai/signet/internal/storage"
)

// Result holds a memory ID, its blended relevance score, and which source(s)
// contributed to it. The caller hydrates full Memory objects from the Store
// (source of truth) via Enrich, preserving this package's sort order.
type Result struct {
	MemoryID uuid.UUID
	Score    float32
	Source   string // "vector", "keyword", or "hybrid"
}

// Searcher is the interface external ANN indexes implement.
// Implementations must be safe for concurrent use.
type Searcher interface {
	// Search returns memory IDs matching the query vector, filtered, with
	// raw similarity scores; the caller hydrates from the Store.
	Search(ctx context.Context, embedding []float32, filter model.MemoryFilter, limit int) ([]Result, error)

	// Healthy returns nil if the search index is reachable.
	Healthy(ctx context.Context) error
}

// Store is the slice of storage.DB the hybrid engine needs.
type Store interface {
	SearchFTS(ctx context.Context, queryText string, filter model.MemoryFilter, limit int) ([]storage.FTSHit, error)
	SubstringSearch(ctx context.Context, queryText string, filter model.MemoryFilter, limit int) ([]uuid.UUID, error)
	Enrich(ctx context.Context, ids []uuid.UUID) ([]model.Memory, error)
}

// Query is the set of inputs to a hybrid search call.
type Query struct {
	Text     string
	Vector   []float32 // nil falls back to keyword-only
	Filter   model.MemoryFilter
	TopK     int     // per-source candidate count, default 50
	Limit    int     // final result count, default 10
	Alpha    float64 // vector score weight, default 0.7
	MinScore float64 // default 0.1
}

func (q *Query) applyDefaults() {
	if q.TopK <= 0 {
		q.TopK = 50
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Alpha == 0 {
		q.Alpha = 0.7
	}
	if q.MinScore == 0 {
		q.MinScore = 0.1
	}
}

// Engine runs hybrid search over a Store's FTS index and an optional dense
// Searcher (the in-process VectorIndex, or an external QdrantIndex).
type Engine struct {
	store   Store
	dense   Searcher
}

// NewEngine builds an Engine. dense may be nil, in which case search
// degrades to keyword-only (and finally substring, if FTS itself is
// unavailable).
func NewEngine(store Store, dense Searcher) *Engine {
	return &Engine{store: store, dense: dense}
}

// Search runs the hybrid procedure: vector KNN ∪ BM25 keyword, normalized
// and alpha-blended, filtered by min_score, enriched from the Store in
// descending score order.
func (e *Engine) Search(ctx context.Context, q Query) ([]model.Memory, []Result, error) {
	q.applyDefaults()

	vecScores := map[uuid.UUID]float64{}
	if q.Vector != nil && e.dense != nil {
		hits, err := e.dense.Search(ctx, q.Vector, q.Filter, q.TopK)
		if err != nil {
			return nil, nil, fmt.Errorf("search: vector search: %w", err)
		}
		for _, h := range hits {
			vecScores[h.MemoryID] = math.Max(0, math.Min(1, float64(h.Score)))
		}
	}

	kwScores := map[uuid.UUID]float64{}
	if q.Text != "" {
		hits, err := e.store.SearchFTS(ctx, q.Text, q.Filter, q.TopK)
		if err != nil {
			// FTS unavailable: keyword search contributes no candidates, and
			// the substring fallback below covers an empty vector side.
			hits = nil
		}
		for _, h := range hits {
			// bm25() is more-negative-is-better; fold into (0,1].
			kwScores[h.MemoryID] = 1 / (1 + math.Abs(h.RawScore))
		}
	}

	if len(vecScores) == 0 && len(kwScores) == 0 {
		// Neither index produced candidates: final bootstrap fallback.
		if q.Text == "" {
			return nil, nil, nil
		}
		ids, err := e.store.SubstringSearch(ctx, q.Text, q.Filter, q.Limit)
		if err != nil {
			return nil, nil, fmt.Errorf("search: substring fallback: %w", err)
		}
		memories, err := e.store.Enrich(ctx, ids)
		if err != nil {
			return nil, nil, err
		}
		results := make([]Result, len(memories))
		for i, m := range memories {
			results[i] = Result{MemoryID: m.ID, Score: 1, Source: "keyword"}
		}
		return memories, results, nil
	}

	ids := make(map[uuid.UUID]struct{}, len(vecScores)+len(kwScores))
	for id := range vecScores {
		ids[id] = struct{}{}
	}
	for id := range kwScores {
		ids[id] = struct{}{}
	}

	results := make([]Result, 0, len(ids))
	for id := range ids {
		sv, hasV := vecScores[id]
		sk, hasK := kwScores[id]
		var score float64
		var source string
		switch {
		case hasV && hasK:
			score = q.Alpha*sv + (1-q.Alpha)*sk
			source = "hybrid"
		case hasV:
			score = sv
			source = "vector"
		default:
			score = sk
			source = "keyword"
		}
		if score < q.MinScore {
			continue
		}
		results = append(results, Result{MemoryID: id, Score: float32(score), Source: source})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}

	orderedIDs := make([]uuid.UUID, len(results))
	for i, r := range results {
		orderedIDs[i] = r.MemoryID
	}
	memories, err := e.store.Enrich(ctx, orderedIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("search: enrich results: %w", err)
	}
	return memories, results, nil
}
