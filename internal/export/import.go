package export

import (
	"context"
	"fmt"

	"github.com/signet-ai/signet/internal/model"
)

// MergeStrategy decides how an imported record that collides with an
// existing one (by content hash for memories, by id for everything else) is
// resolved.
type MergeStrategy string

const (
	// MergeReplace always overwrites the local record with the bundle's.
	MergeReplace MergeStrategy = "replace"

	// MergeCombine keeps whichever of the local and incoming record was
	// updated more recently, and always adds records that don't exist
	// locally yet.
	MergeCombine MergeStrategy = "merge"

	// MergeSkipExisting adds only records absent locally; anything that
	// already exists is left untouched.
	MergeSkipExisting MergeStrategy = "skip-existing"
)

// Importer is the write side import needs. *storage.DB satisfies it.
type Importer interface {
	MemoryByContentHash(ctx context.Context, contentHash string) (model.Memory, bool, error)
	ImportMemory(ctx context.Context, m model.Memory) error
	ImportDecision(ctx context.Context, d model.Decision) error
	ImportEntity(ctx context.Context, e model.Entity) error
	ImportRelation(ctx context.Context, r model.Relation) error
}

// Result reports what Import actually did, broken down per collection.
type Result struct {
	MemoriesImported  int
	MemoriesSkipped   int
	DecisionsImported int
	EntitiesImported  int
	RelationsImported int
}

// VerifyOptions controls what Import checks before applying a bundle.
type VerifyOptions struct {
	// SkipSignature allows an unsigned or unverifiable bundle through,
	// provided its checksum still matches — the spec's "unless skipped"
	// clause on signature verification.
	SkipSignature bool
}

// Import applies a bundle's data to store under the given strategy. The
// checksum is always verified; the signature is verified unless
// verify.SkipSignature is set.
func Import(ctx context.Context, store Importer, b *Bundle, strategy MergeStrategy, verify VerifyOptions) (Result, error) {
	if err := b.VerifyChecksum(); err != nil {
		return Result{}, err
	}
	if !verify.SkipSignature {
		if err := b.VerifySignature(); err != nil {
			return Result{}, err
		}
	}

	var res Result

	for _, m := range b.Data.Memories {
		imported, err := importMemory(ctx, store, m, strategy)
		if err != nil {
			return res, fmt.Errorf("export: import memory %s: %w", m.ID, err)
		}
		if imported {
			res.MemoriesImported++
		} else {
			res.MemoriesSkipped++
		}
	}

	// Entities must land before relations reference them.
	for _, e := range b.Data.Entities {
		if err := store.ImportEntity(ctx, e); err != nil {
			return res, fmt.Errorf("export: import entity %s: %w", e.ID, err)
		}
		res.EntitiesImported++
	}
	for _, r := range b.Data.Relations {
		if err := store.ImportRelation(ctx, r); err != nil {
			return res, fmt.Errorf("export: import relation %s: %w", r.ID, err)
		}
		res.RelationsImported++
	}
	for _, d := range b.Data.Decisions {
		if err := store.ImportDecision(ctx, d); err != nil {
			return res, fmt.Errorf("export: import decision %s: %w", d.ID, err)
		}
		res.DecisionsImported++
	}

	return res, nil
}

// importMemory applies strategy to a single incoming memory and reports
// whether it wrote anything.
func importMemory(ctx context.Context, store Importer, incoming model.Memory, strategy MergeStrategy) (bool, error) {
	existing, ok, err := store.MemoryByContentHash(ctx, incoming.ContentHash)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, store.ImportMemory(ctx, incoming)
	}

	switch strategy {
	case MergeReplace:
		incoming.ID = existing.ID // preserve local identity; replace its content
		return true, store.ImportMemory(ctx, incoming)
	case MergeSkipExisting:
		return false, nil
	case MergeCombine:
		if incoming.UpdatedAt.After(existing.UpdatedAt) {
			incoming.ID = existing.ID
			return true, store.ImportMemory(ctx, incoming)
		}
		return false, nil
	default:
		return false, fmt.Errorf("export: unknown merge strategy %q", strategy)
	}
}
