// Package export implements the portable backup/transfer format: a single
// gzip-compressed JSON bundle containing every memory, decision, graph
// entity and relation, and (optionally) the latest Merkle root and the
// exporting identity's DID — checksummed and, for a signing-capable
// identity, signed.
package export

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/signet-ai/signet/internal/did"
	"github.com/signet-ai/signet/internal/model"
	"github.com/signet-ai/signet/internal/signeterr"
)

// FormatVersion identifies the bundle's JSON shape. Bumped whenever a
// field's meaning changes in a way that breaks old readers.
const FormatVersion = 1

// Format names the bundle's on-disk encoding, recorded in metadata so a
// future reader can tell a gzip bundle from some later alternative without
// guessing from the file extension.
const Format = "signet-bundle"

// Metadata describes a bundle without requiring the caller to inflate its
// data payload.
type Metadata struct {
	Version    int       `json:"version"`
	Format     string    `json:"format"`
	ExportedAt time.Time `json:"exported_at"`
	DID        *string   `json:"did,omitempty"`
	PublicKey  *string   `json:"public_key,omitempty"` // base64 standard encoding
	Counts     Counts    `json:"counts"`
	Checksum   string    `json:"checksum"`
	Signature  *string   `json:"signature,omitempty"`
}

// Counts records how many rows of each kind the bundle carries, so a caller
// can sanity-check an import's scope before applying it.
type Counts struct {
	Memories  int `json:"memories"`
	Decisions int `json:"decisions"`
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
}

// Data is the payload a bundle's checksum and signature cover.
type Data struct {
	Memories        []model.Memory   `json:"memories"`
	Decisions       []model.Decision `json:"decisions"`
	Entities        []model.Entity   `json:"entities"`
	Relations       []model.Relation `json:"relations"`
	MerkleRoot      *string          `json:"merkle_root,omitempty"`
	MerkleLeafCount *int             `json:"merkle_leaf_count,omitempty"`
	Identity        *string          `json:"identity,omitempty"` // exporter's did:key, duplicated from Metadata for convenience
}

// Bundle is a full export/import unit.
type Bundle struct {
	Metadata Metadata `json:"metadata"`
	Data     Data     `json:"data"`
}

// Store is the read side export needs. *storage.DB satisfies it.
type Store interface {
	List(ctx context.Context, filter model.MemoryFilter, limit, offset int) ([]model.Memory, error)
	ListDecisions(ctx context.Context) ([]model.Decision, error)
	ListEntities(ctx context.Context) ([]model.Entity, error)
	ListRelations(ctx context.Context) ([]model.Relation, error)
	LatestMerkleRoot(ctx context.Context) (model.MerkleRoot, bool, error)
}

// unboundedPageSize is large enough that any realistic local database is
// read in a single List call; the bundle format is a whole-snapshot file,
// not a paginated stream.
const unboundedPageSize = 1_000_000

// BuildOptions controls what an export includes and who signs it.
type BuildOptions struct {
	// IncludeMerkleRoot attaches the latest computed Merkle root, if any.
	IncludeMerkleRoot bool

	// SignerDID and SignFn, if both set, produce metadata.signature as an
	// Ed25519 signature (base64 standard, not URL-safe) over the checksum
	// string. SignFn receives the checksum's raw bytes.
	SignerDID string
	SignFn    func(message []byte) (signature []byte, err error)

	// PublicKey, if set, is recorded in metadata so an importer without
	// prior knowledge of the exporter can still verify the signature.
	PublicKey ed25519.PublicKey
}

// Build reads everything Store exposes and assembles a Bundle. The checksum
// is always computed; the signature is only attached when opts supplies a
// signer.
func Build(ctx context.Context, store Store, opts BuildOptions) (*Bundle, error) {
	memories, err := store.List(ctx, model.MemoryFilter{IncludeDeleted: false}, unboundedPageSize, 0)
	if err != nil {
		return nil, fmt.Errorf("export: list memories: %w", err)
	}
	decisions, err := store.ListDecisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: list decisions: %w", err)
	}
	entities, err := store.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: list entities: %w", err)
	}
	relations, err := store.ListRelations(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: list relations: %w", err)
	}

	data := Data{
		Memories:  orEmptyMemories(memories),
		Decisions: orEmptyDecisions(decisions),
		Entities:  orEmptyEntities(entities),
		Relations: orEmptyRelations(relations),
	}

	if opts.IncludeMerkleRoot {
		if root, ok, err := store.LatestMerkleRoot(ctx); err != nil {
			return nil, fmt.Errorf("export: latest merkle root: %w", err)
		} else if ok {
			data.MerkleRoot = &root.RootHash
			data.MerkleLeafCount = &root.MemoryCount
		}
	}

	if opts.SignerDID != "" {
		data.Identity = &opts.SignerDID
	}

	checksum, err := Checksum(data)
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		Version:    FormatVersion,
		Format:     Format,
		ExportedAt: time.Now().UTC(),
		Counts: Counts{
			Memories:  len(data.Memories),
			Decisions: len(data.Decisions),
			Entities:  len(data.Entities),
			Relations: len(data.Relations),
		},
		Checksum: checksum,
	}
	if opts.SignerDID != "" {
		meta.DID = &opts.SignerDID
	}
	if len(opts.PublicKey) > 0 {
		enc := base64.StdEncoding.EncodeToString(opts.PublicKey)
		meta.PublicKey = &enc
	}

	if opts.SignerDID != "" && opts.SignFn != nil {
		sig, err := opts.SignFn([]byte(checksum))
		if err != nil {
			return nil, fmt.Errorf("export: sign checksum: %w", err)
		}
		enc := base64.StdEncoding.EncodeToString(sig)
		meta.Signature = &enc
	}

	return &Bundle{Metadata: meta, Data: data}, nil
}

// Checksum computes the hex SHA-256 of data's canonical JSON encoding.
// encoding/json always serializes struct fields in declaration order, so
// this is deterministic for any two Data values with equal contents.
func Checksum(data Data) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("export: marshal data for checksum: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Marshal gzips the bundle's JSON encoding — the `.signet-bundle.json.gz`
// on-disk form.
func (b *Bundle) Marshal() ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("export: marshal bundle: %w", err)
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, fmt.Errorf("export: gzip bundle: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("export: close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal inflates a `.signet-bundle.json.gz` file into a Bundle. It does
// not verify the checksum or signature; call VerifyChecksum and
// VerifySignature explicitly so callers can decide how to react to a
// mismatch (Import does this for them).
func Unmarshal(gzipped []byte) (*Bundle, error) {
	gr, err := gzip.NewReader(bytes.NewReader(gzipped))
	if err != nil {
		return nil, signeterr.Wrap(signeterr.Corrupted, fmt.Errorf("export: open gzip: %w", err))
	}
	defer gr.Close()

	raw, err := io.ReadAll(gr)
	if err != nil {
		return nil, signeterr.Wrap(signeterr.Corrupted, fmt.Errorf("export: read gzip: %w", err))
	}

	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, signeterr.Wrap(signeterr.Corrupted, fmt.Errorf("export: unmarshal bundle: %w", err))
	}
	return &b, nil
}

// VerifyChecksum recomputes the checksum over b.Data and compares it against
// b.Metadata.Checksum.
func (b *Bundle) VerifyChecksum() error {
	got, err := Checksum(b.Data)
	if err != nil {
		return err
	}
	if got != b.Metadata.Checksum {
		return signeterr.Newf(signeterr.Corrupted, "export: checksum mismatch: bundle says %s, data hashes to %s", b.Metadata.Checksum, got)
	}
	return nil
}

// VerifySignature checks b.Metadata.Signature as an Ed25519 signature over
// the checksum string, using either the embedded public key or, if absent,
// the public key recovered from b.Metadata.DID.
func (b *Bundle) VerifySignature() error {
	if b.Metadata.Signature == nil {
		return signeterr.New(signeterr.BadSignature, "export: bundle is unsigned")
	}
	sig, err := base64.StdEncoding.DecodeString(*b.Metadata.Signature)
	if err != nil {
		return signeterr.Wrap(signeterr.BadSignature, fmt.Errorf("export: decode signature: %w", err))
	}

	pub, err := b.publicKey()
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, []byte(b.Metadata.Checksum), sig) {
		return signeterr.New(signeterr.BadSignature, "export: signature does not verify")
	}
	return nil
}

func (b *Bundle) publicKey() (ed25519.PublicKey, error) {
	if b.Metadata.PublicKey != nil {
		raw, err := base64.StdEncoding.DecodeString(*b.Metadata.PublicKey)
		if err != nil {
			return nil, signeterr.Wrap(signeterr.InvalidDid, fmt.Errorf("export: decode embedded public key: %w", err))
		}
		return ed25519.PublicKey(raw), nil
	}
	if b.Metadata.DID != nil {
		return did.ToPublicKey(*b.Metadata.DID)
	}
	return nil, signeterr.New(signeterr.KeyNotFound, "export: bundle carries neither a public key nor a did")
}

func orEmptyMemories(m []model.Memory) []model.Memory {
	if m == nil {
		return []model.Memory{}
	}
	return m
}

func orEmptyDecisions(d []model.Decision) []model.Decision {
	if d == nil {
		return []model.Decision{}
	}
	return d
}

func orEmptyEntities(e []model.Entity) []model.Entity {
	if e == nil {
		return []model.Entity{}
	}
	return e
}

func orEmptyRelations(r []model.Relation) []model.Relation {
	if r == nil {
		return []model.Relation{}
	}
	return r
}
