package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const taskColumns = "id, provider_ref, kind, item_id, owner_id, provider_status, artifact_url, error_message, submitted_at, updated_at"

// InsertTask records a newly submitted external task. Tasks gated by the
// credit gate are inserted through CheckAndDeduct instead.
func (s *Store) InsertTask(ctx context.Context, task *ExternalTask) error {
	if task == nil {
		return errors.New("task is nil")
	}
	if strings.TrimSpace(task.ID) == "" || strings.TrimSpace(task.ItemID) == "" {
		return errors.New("task id and item id are required")
	}
	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now().UTC()
	}
	task.UpdatedAt = task.SubmittedAt
	if task.ProviderStatus == "" {
		task.ProviderStatus = TaskStatusProcessing
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO external_tasks (id, provider_ref, kind, item_id, owner_id, provider_status, artifact_url, submitted_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		nullableString(task.ProviderRef),
		task.Kind,
		task.ItemID,
		task.OwnerID,
		task.ProviderStatus,
		nullableString(task.ArtifactURL),
		timestamp(task.SubmittedAt),
		timestamp(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert external task: %w", err)
	}
	return nil
}

// GetTask fetches an external task by identifier.
func (s *Store) GetTask(ctx context.Context, id string) (*ExternalTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM external_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get external task: %w", err)
	}
	return task, nil
}

// UnresolvedTasks returns tasks of a kind that have not reached a terminal
// provider status, oldest first.
func (s *Store) UnresolvedTasks(ctx context.Context, kind TaskKind) ([]*ExternalTask, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM external_tasks
         WHERE kind = ? AND provider_status IN (?, ?) ORDER BY submitted_at`,
		kind, TaskStatusQueued, TaskStatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("list unresolved tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*ExternalTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// AttachProviderRef stores the provider-side identifier once a submission
// completes, moving the task from queued to processing.
func (s *Store) AttachProviderRef(ctx context.Context, id, providerRef string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE external_tasks SET provider_ref = ?, provider_status = ?, updated_at = ? WHERE id = ?`,
		providerRef, TaskStatusProcessing, timestamp(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("attach provider ref: %w", err)
	}
	return nil
}

// ResolveTaskSuccess records the resolved artifact URL and flips the task to
// its terminal success status. The caller flips the work item only after this
// write lands, preserving the artifact-before-state ordering.
func (s *Store) ResolveTaskSuccess(ctx context.Context, id, artifactURL string) error {
	if strings.TrimSpace(artifactURL) == "" {
		return errors.New("artifact url is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE external_tasks SET provider_status = ?, artifact_url = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
		TaskStatusSuccess, artifactURL, timestamp(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("resolve task success: %w", err)
	}
	return nil
}

// ResolveTaskFailure records a terminal provider failure.
func (s *Store) ResolveTaskFailure(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE external_tasks SET provider_status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		TaskStatusFailed, nullableString(strings.TrimSpace(message)), timestamp(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("resolve task failure: %w", err)
	}
	return nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*ExternalTask, error) {
	var (
		id           string
		providerRef  sql.NullString
		kind         string
		itemID       string
		ownerID      string
		status       string
		artifactURL  sql.NullString
		errorMessage sql.NullString
		submittedRaw sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(&id, &providerRef, &kind, &itemID, &ownerID, &status, &artifactURL, &errorMessage, &submittedRaw, &updatedRaw); err != nil {
		return nil, err
	}
	task := &ExternalTask{
		ID:             id,
		ProviderRef:    providerRef.String,
		Kind:           TaskKind(kind),
		ItemID:         itemID,
		OwnerID:        ownerID,
		ProviderStatus: status,
		ArtifactURL:    artifactURL.String,
		ErrorMessage:   errorMessage.String,
	}
	if submitted, err := parseTimeString(submittedRaw.String); err == nil {
		task.SubmittedAt = submitted
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}
