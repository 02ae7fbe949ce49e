package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const itemColumns = "id, owner_id, channel_id, stage, fingerprint, idea, script, script_provider, voice_task_id, voice_audio_url, video_task_id, archived_asset_id, error_message, created_at, updated_at"

// NewItem inserts a new work item in the NEW stage. An empty fingerprint is
// allowed for manually submitted ideas; ingestion jobs set it for dedupe.
func (s *Store) NewItem(ctx context.Context, ownerID, channelID, idea, fingerprint string) (*WorkItem, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(channelID) == "" {
		return nil, errors.New("owner and channel are required")
	}
	if strings.TrimSpace(idea) == "" {
		return nil, errors.New("idea text is required")
	}

	id := uuid.NewString()
	now := timestamp(time.Now())
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO work_items (id, owner_id, channel_id, stage, fingerprint, idea, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, channelID, StageNew, nullableString(fingerprint), idea, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert work item: %w", err)
	}
	return s.GetItem(ctx, id)
}

// GetItem fetches a work item by identifier.
func (s *Store) GetItem(ctx context.Context, id string) (*WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return item, nil
}

// FindByFingerprint returns the item matching an idea fingerprint, if any.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*WorkItem, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM work_items WHERE fingerprint = ? LIMIT 1`,
		fingerprint,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	return item, nil
}

// ItemsByStage returns up to limit items in a stage, oldest first. A limit of
// zero or less returns all matching items.
func (s *Store) ItemsByStage(ctx context.Context, stage Stage, limit int) ([]*WorkItem, error) {
	query := `SELECT ` + itemColumns + ` FROM work_items WHERE stage = ? ORDER BY created_at`
	args := []any{stage}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by stage: %w", err)
	}
	defer rows.Close()

	var items []*WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// List returns work items filtered by stage set (or all items when no stage
// is provided), oldest first.
func (s *Store) List(ctx context.Context, stages ...Stage) ([]*WorkItem, error) {
	baseQuery := `SELECT ` + itemColumns + ` FROM work_items`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(stages) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(stages))
		args := make([]any, len(stages))
		for i, stage := range stages {
			args[i] = stage
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE stage IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	var items []*WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClaimStage performs the single-row compare-and-set that serves as the
// item's lock: the stage is written to `to` only if it still reads `from`.
// Returns false when another invocation claimed the item first.
func (s *Store) ClaimStage(ctx context.Context, id string, from, to Stage) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items SET stage = ?, error_message = NULL, updated_at = ? WHERE id = ? AND stage = ?`,
		to, timestamp(time.Now()), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("claim stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// UpdateItem persists changes to an existing work item.
func (s *Store) UpdateItem(ctx context.Context, item *WorkItem) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items
         SET stage = ?, idea = ?, script = ?, script_provider = ?,
             voice_task_id = ?, voice_audio_url = ?, video_task_id = ?,
             archived_asset_id = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		item.Stage,
		nullableString(item.Idea),
		nullableString(item.Script),
		nullableString(item.ScriptProvider),
		nullableString(item.VoiceTaskID),
		nullableString(item.VoiceAudioURL),
		nullableString(item.VideoTaskID),
		nullableInt64(item.ArchivedAssetID),
		nullableString(item.ErrorMessage),
		timestamp(item.UpdatedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update work item: %w", err)
	}
	return nil
}

// UpdateItemIf persists changes only while the stored stage still reads
// `expected`, extending the claim semantics to post-claim writes. Returns
// false when another writer moved the item first, leaving the row untouched.
func (s *Store) UpdateItemIf(ctx context.Context, item *WorkItem, expected Stage) (bool, error) {
	if item == nil {
		return false, errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items
         SET stage = ?, idea = ?, script = ?, script_provider = ?,
             voice_task_id = ?, voice_audio_url = ?, video_task_id = ?,
             archived_asset_id = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND stage = ?`,
		item.Stage,
		nullableString(item.Idea),
		nullableString(item.Script),
		nullableString(item.ScriptProvider),
		nullableString(item.VoiceTaskID),
		nullableString(item.VoiceAudioURL),
		nullableString(item.VideoTaskID),
		nullableInt64(item.ArchivedAssetID),
		nullableString(item.ErrorMessage),
		timestamp(item.UpdatedAt),
		item.ID,
		expected,
	)
	if err != nil {
		return false, fmt.Errorf("update work item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// MarkFailed stamps a failure stage and message on an item.
func (s *Store) MarkFailed(ctx context.Context, id string, failed Stage, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE work_items SET stage = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		failed, nullableString(strings.TrimSpace(message)), timestamp(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// RetryFailed resets a failed item back one stage so the engine picks it up
// again. Returns false when the item is not in a failed stage.
func (s *Store) RetryFailed(ctx context.Context, id string) (bool, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, fmt.Errorf("work item %s not found", id)
	}
	target, ok := RetryTarget(item.Stage)
	if !ok {
		return false, nil
	}
	claimed, err := s.ClaimStage(ctx, id, item.Stage, target)
	if err != nil {
		return false, err
	}
	if claimed {
		if err := s.AppendActivity(ctx, id, "retry", fmt.Sprintf("reset %s to %s", item.Stage, target)); err != nil {
			return true, err
		}
	}
	return claimed, nil
}

// Regenerate re-enters content_ready from a terminal stage without touching
// downstream artifacts, recording the request in the append-only activity log.
func (s *Store) Regenerate(ctx context.Context, id string) error {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("work item %s not found", id)
	}
	switch item.Stage {
	case StageArchived, StageFailedVoice, StageFailedVideo, StageFailedArchive, StageVideoReady:
	default:
		return fmt.Errorf("cannot regenerate from stage %s", item.Stage)
	}
	claimed, err := s.ClaimStage(ctx, id, item.Stage, StageContentReady)
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("work item %s changed stage concurrently", id)
	}
	return s.AppendActivity(ctx, id, "regenerate", fmt.Sprintf("re-entered %s from %s", StageContentReady, item.Stage))
}

// Stats returns a count of items grouped by stage.
func (s *Store) Stats(ctx context.Context) (map[Stage]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(1) FROM work_items GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Stage]int)
	for rows.Next() {
		var stage Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		stats[stage] = count
	}
	return stats, rows.Err()
}

// Health aggregates item state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for stage, count := range stats {
		health.Total += count
		switch {
		case stage == StageArchived:
			health.Archived += count
		case IsFailed(stage):
			health.Failed += count
		case IsPending(stage):
			health.Pending += count
		default:
			health.Waiting += count
		}
	}
	return health, nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*WorkItem, error) {
	var (
		id            string
		ownerID       string
		channelID     string
		stageStr      string
		fingerprint   sql.NullString
		idea          sql.NullString
		script        sql.NullString
		provider      sql.NullString
		voiceTaskID   sql.NullString
		voiceAudioURL sql.NullString
		videoTaskID   sql.NullString
		archivedID    sql.NullInt64
		errorMessage  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&channelID,
		&stageStr,
		&fingerprint,
		&idea,
		&script,
		&provider,
		&voiceTaskID,
		&voiceAudioURL,
		&videoTaskID,
		&archivedID,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &WorkItem{
		ID:             id,
		OwnerID:        ownerID,
		ChannelID:      channelID,
		Stage:          Stage(stageStr),
		Fingerprint:    fingerprint.String,
		Idea:           idea.String,
		Script:         script.String,
		ScriptProvider: provider.String,
		VoiceTaskID:    voiceTaskID.String,
		VoiceAudioURL:  voiceAudioURL.String,
		VideoTaskID:    videoTaskID.String,
		ErrorMessage:   errorMessage.String,
	}
	if archivedID.Valid {
		item.ArchivedAssetID = archivedID.Int64
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}
