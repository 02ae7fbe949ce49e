package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"reelforge/internal/services"
)

// AddSourceAsset appends a reusable source video to a channel's pool.
func (s *Store) AddSourceAsset(ctx context.Context, channelID, name, url string) error {
	if strings.TrimSpace(channelID) == "" || strings.TrimSpace(url) == "" {
		return errors.New("channel and url are required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO source_assets (channel_id, position, name, url)
         VALUES (?, (SELECT COALESCE(MAX(position) + 1, 0) FROM source_assets WHERE channel_id = ?), ?, ?)`,
		channelID, channelID, nullableString(name), url,
	)
	if err != nil {
		return fmt.Errorf("add source asset: %w", err)
	}
	return nil
}

// SourceAssets lists a channel's pool in position order.
func (s *Store) SourceAssets(ctx context.Context, channelID string) ([]*SourceAsset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT channel_id, position, name, url FROM source_assets WHERE channel_id = ? ORDER BY position`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("list source assets: %w", err)
	}
	defer rows.Close()

	var assets []*SourceAsset
	for rows.Next() {
		var (
			asset SourceAsset
			name  sql.NullString
		)
		if err := rows.Scan(&asset.ChannelID, &asset.Position, &name, &asset.URL); err != nil {
			return nil, err
		}
		asset.Name = name.String
		assets = append(assets, &asset)
	}
	return assets, rows.Err()
}

// AllocateNext hands out the next source asset for a channel round-robin.
// Reading the cursor, selecting the asset, and advancing the cursor happen in
// one write transaction, so two concurrent allocations for the same channel
// never receive the same asset before the cursor moves past it. The cursor
// only advances, never regresses.
func (s *Store) AllocateNext(ctx context.Context, channelID string) (*SourceAsset, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin allocation: %w", err)
	}
	defer tx.Rollback()

	// Touching the cursor row first upgrades the transaction to a write
	// lock before the pool is read, serializing concurrent allocations.
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO source_cursors (channel_id, cursor) VALUES (?, 0)
         ON CONFLICT(channel_id) DO UPDATE SET cursor = cursor + 1`,
		channelID,
	); err != nil {
		return nil, fmt.Errorf("advance cursor: %w", err)
	}

	var cursor int64
	if err := tx.QueryRowContext(ctx, `SELECT cursor FROM source_cursors WHERE channel_id = ?`, channelID).Scan(&cursor); err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}

	var poolSize int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM source_assets WHERE channel_id = ?`, channelID).Scan(&poolSize); err != nil {
		return nil, fmt.Errorf("count pool: %w", err)
	}
	if poolSize == 0 {
		return nil, services.Wrap(services.ErrPoolEmpty, "video", "allocate", fmt.Sprintf("channel %s has no source assets", channelID), nil)
	}

	index := cursor % poolSize
	var (
		asset SourceAsset
		name  sql.NullString
	)
	err = tx.QueryRowContext(
		ctx,
		`SELECT channel_id, position, name, url FROM source_assets
         WHERE channel_id = ? ORDER BY position LIMIT 1 OFFSET ?`,
		channelID, index,
	).Scan(&asset.ChannelID, &asset.Position, &name, &asset.URL)
	if err != nil {
		return nil, fmt.Errorf("select asset: %w", err)
	}
	asset.Name = name.String

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit allocation: %w", err)
	}
	return &asset, nil
}
