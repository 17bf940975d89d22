package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
)

// UpsertPeer creates a peer record (trust_level defaults to pending) or
// updates its address/display name if one already exists for the DID.
func (db *DB) UpsertPeer(ctx context.Context, did string, displayName, address *string) (model.Peer, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	id := uuid.New()

	_, err := db.writer.ExecContext(ctx, `
		INSERT INTO peers (id, did, display_name, address, trust_level, sync_count, push_count, created_at, updated_at)
		VALUES (?,?,?,?, 'pending', 0, 0, ?, ?)
		ON CONFLICT(did) DO UPDATE SET
			display_name = COALESCE(excluded.display_name, peers.display_name),
			address = COALESCE(excluded.address, peers.address),
			updated_at = excluded.updated_at`,
		id.String(), did, displayName, address, now, now,
	)
	if err != nil {
		return model.Peer{}, fmt.Errorf("storage: upsert peer: %w", err)
	}
	return db.PeerByDID(ctx, did)
}

// PeerByDID fetches a peer by its DID.
func (db *DB) PeerByDID(ctx context.Context, did string) (model.Peer, error) {
	row := db.reader.QueryRowContext(ctx, `
		SELECT id, did, display_name, chain_address, address, trust_level, last_sync,
			sync_count, push_count, created_at, updated_at
		FROM peers WHERE did = ?`, did)
	return scanPeer(row)
}

// PeerByID fetches a peer by its local id.
func (db *DB) PeerByID(ctx context.Context, id uuid.UUID) (model.Peer, error) {
	row := db.reader.QueryRowContext(ctx, `
		SELECT id, did, display_name, chain_address, address, trust_level, last_sync,
			sync_count, push_count, created_at, updated_at
		FROM peers WHERE id = ?`, id.String())
	return scanPeer(row)
}

// SetTrustLevel is the only way a peer's trust changes; federation itself
// never escalates trust.
func (db *DB) SetTrustLevel(ctx context.Context, id uuid.UUID, level model.TrustLevel) error {
	res, err := db.writer.ExecContext(ctx,
		`UPDATE peers SET trust_level = ?, updated_at = ? WHERE id = ?`,
		string(level), time.Now().UTC().Format(time.RFC3339Nano), id.String())
	if err != nil {
		return fmt.Errorf("storage: set trust level: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTrustedPeers returns every peer currently at trust level "trusted".
func (db *DB) ListTrustedPeers(ctx context.Context) ([]model.Peer, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, did, display_name, chain_address, address, trust_level, last_sync,
			sync_count, push_count, created_at, updated_at
		FROM peers WHERE trust_level = 'trusted'`)
	if err != nil {
		return nil, fmt.Errorf("storage: list trusted peers: %w", err)
	}
	defer rows.Close()

	var out []model.Peer
	for rows.Next() {
		p, err := scanPeerRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordSync bumps a peer's sync_count and last_sync timestamp.
func (db *DB) RecordSync(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := db.writer.ExecContext(ctx,
		`UPDATE peers SET sync_count = sync_count + 1, last_sync = ?, updated_at = ? WHERE id = ?`,
		now, now, id.String())
	if err != nil {
		return fmt.Errorf("storage: record sync: %w", err)
	}
	return nil
}

// RecordPush bumps a peer's push_count.
func (db *DB) RecordPush(ctx context.Context, id uuid.UUID) error {
	_, err := db.writer.ExecContext(ctx,
		`UPDATE peers SET push_count = push_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id.String())
	if err != nil {
		return fmt.Errorf("storage: record push: %w", err)
	}
	return nil
}

type rowsScanner interface {
	Scan(dest ...any) error
}

func scanPeer(row *sql.Row) (model.Peer, error)   { return scanPeerGeneric(row) }
func scanPeerRows(rows *sql.Rows) (model.Peer, error) { return scanPeerGeneric(rows) }

func scanPeerGeneric(s rowsScanner) (model.Peer, error) {
	var (
		p                                             model.Peer
		idStr                                         string
		displayName, chainAddr, address, lastSync     sql.NullString
		trustLevel, createdAt, updatedAt              string
	)
	err := s.Scan(&idStr, &p.DID, &displayName, &chainAddr, &address, &trustLevel, &lastSync,
		&p.SyncCount, &p.PushCount, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return model.Peer{}, ErrNotFound
	}
	if err != nil {
		return model.Peer{}, fmt.Errorf("storage: scan peer: %w", err)
	}

	p.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Peer{}, err
	}
	p.DisplayName = nullableString(displayName)
	p.ChainAddr = nullableString(chainAddr)
	p.Address = nullableString(address)
	p.TrustLevel = model.TrustLevel(trustLevel)
	p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Peer{}, err
	}
	p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return model.Peer{}, err
	}
	if lastSync.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastSync.String)
		if err != nil {
			return model.Peer{}, err
		}
		p.LastSync = &t
	}
	return p, nil
}
