package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const assetColumns = "id, channel_id, task_id, storage_key, display_name, created_at"

// InsertArchivedAsset registers a relocated asset in the durable catalog.
// The task id and storage key are unique: re-running archival for an already
// archived task returns the existing row instead of inserting a duplicate.
func (s *Store) InsertArchivedAsset(ctx context.Context, asset *ArchivedAsset) (*ArchivedAsset, error) {
	if asset == nil {
		return nil, errors.New("asset is nil")
	}
	if strings.TrimSpace(asset.TaskID) == "" || strings.TrimSpace(asset.StorageKey) == "" {
		return nil, errors.New("task id and storage key are required")
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO archived_assets (channel_id, task_id, storage_key, display_name, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(task_id) DO NOTHING`,
		asset.ChannelID,
		asset.TaskID,
		asset.StorageKey,
		nullableString(asset.DisplayName),
		timestamp(asset.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert archived asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return s.ArchivedAssetByTask(ctx, asset.TaskID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	asset.ID = id
	return asset, nil
}

// ArchivedAssetByTask fetches the catalog row for a resolved external task.
func (s *Store) ArchivedAssetByTask(ctx context.Context, taskID string) (*ArchivedAsset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM archived_assets WHERE task_id = ?`, taskID)
	asset, err := scanArchivedAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get archived asset: %w", err)
	}
	return asset, nil
}

// ArchivedAssets lists the durable catalog for a channel, newest first.
func (s *Store) ArchivedAssets(ctx context.Context, channelID string) ([]*ArchivedAsset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+assetColumns+` FROM archived_assets WHERE channel_id = ? ORDER BY created_at DESC`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("list archived assets: %w", err)
	}
	defer rows.Close()

	var assets []*ArchivedAsset
	for rows.Next() {
		asset, err := scanArchivedAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func scanArchivedAsset(scanner interface{ Scan(dest ...any) error }) (*ArchivedAsset, error) {
	var (
		id          int64
		channelID   string
		taskID      string
		storageKey  string
		displayName sql.NullString
		createdRaw  sql.NullString
	)
	if err := scanner.Scan(&id, &channelID, &taskID, &storageKey, &displayName, &createdRaw); err != nil {
		return nil, err
	}
	asset := &ArchivedAsset{
		ID:          id,
		ChannelID:   channelID,
		TaskID:      taskID,
		StorageKey:  storageKey,
		DisplayName: displayName.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		asset.CreatedAt = created
	}
	return asset, nil
}
