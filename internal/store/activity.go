package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendActivity adds an entry to an item's append-only activity log.
// Entries are never updated or deleted; regeneration appends rather than
// overwriting earlier prompts.
func (s *Store) AppendActivity(ctx context.Context, itemID, kind, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO activity_log (item_id, kind, message, created_at) VALUES (?, ?, ?, ?)`,
		itemID, kind, nullableString(message), timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ActivityForItem returns an item's activity entries in insertion order.
func (s *Store) ActivityForItem(ctx context.Context, itemID string) ([]*ActivityEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, item_id, kind, message, created_at FROM activity_log WHERE item_id = ? ORDER BY id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []*ActivityEntry
	for rows.Next() {
		var (
			entry      ActivityEntry
			message    sql.NullString
			createdRaw sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.ItemID, &entry.Kind, &message, &createdRaw); err != nil {
			return nil, err
		}
		entry.Message = message.String
		if created, err := parseTimeString(createdRaw.String); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
