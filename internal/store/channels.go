package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const channelColumns = "id, owner_id, name, automation_on, voice_id, prompt_template, subreddit, created_at"

// UpsertChannel creates or replaces a channel definition. Channel rows are
// written by the dashboard collaborator; the pipeline only reads them, but
// tests and the CLI seed them through this call.
func (s *Store) UpsertChannel(ctx context.Context, ch *Channel) error {
	if ch == nil {
		return errors.New("channel is nil")
	}
	if strings.TrimSpace(ch.ID) == "" || strings.TrimSpace(ch.OwnerID) == "" {
		return errors.New("channel id and owner are required")
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO channels (id, owner_id, name, automation_on, voice_id, prompt_template, subreddit, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             owner_id = excluded.owner_id,
             name = excluded.name,
             automation_on = excluded.automation_on,
             voice_id = excluded.voice_id,
             prompt_template = excluded.prompt_template,
             subreddit = excluded.subreddit`,
		ch.ID,
		ch.OwnerID,
		nullableString(ch.Name),
		boolToInt(ch.AutomationOn),
		nullableString(ch.VoiceID),
		nullableString(ch.PromptTemplate),
		nullableString(ch.Subreddit),
		timestamp(ch.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

// GetChannel fetches a channel by identifier.
func (s *Store) GetChannel(ctx context.Context, id string) (*Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}

// ActiveChannels returns channels with automation enabled.
func (s *Store) ActiveChannels(ctx context.Context) ([]*Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE automation_on = 1 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active channels: %w", err)
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func scanChannel(scanner interface{ Scan(dest ...any) error }) (*Channel, error) {
	var (
		id           string
		ownerID      string
		name         sql.NullString
		automationOn sql.NullInt64
		voiceID      sql.NullString
		prompt       sql.NullString
		subreddit    sql.NullString
		createdRaw   sql.NullString
	)
	if err := scanner.Scan(&id, &ownerID, &name, &automationOn, &voiceID, &prompt, &subreddit, &createdRaw); err != nil {
		return nil, err
	}
	ch := &Channel{
		ID:             id,
		OwnerID:        ownerID,
		Name:           name.String,
		AutomationOn:   automationOn.Valid && automationOn.Int64 != 0,
		VoiceID:        voiceID.String,
		PromptTemplate: prompt.String,
		Subreddit:      subreddit.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		ch.CreatedAt = created
	}
	return ch, nil
}
