package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/snailscoop/modauthority/internal/moderation"
)

type actionStore struct {
	db *sql.DB
}

func (s *actionStore) Append(ctx context.Context, rec moderation.ActionRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into action_records
			(action_id, action_type, actor_id, target_id, community_id, reason, duration_ms, metadata, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, rec.ActionID, string(rec.ActionType), rec.ActorID, rec.TargetID, rec.CommunityID,
		rec.Reason, rec.Duration.Milliseconds(), meta, rec.CreatedAt.UTC())
	return err
}

func (s *actionStore) Get(ctx context.Context, actionID string) (*moderation.ActionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		select action_id, action_type, actor_id, target_id, community_id, reason, duration_ms, metadata, created_at
		from action_records
		where action_id = $1
	`, actionID)
	rec, err := scanActionRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *actionStore) List(ctx context.Context, communityID string, f moderation.ActionFilter) ([]moderation.ActionRecord, error) {
	query := strings.Builder{}
	query.WriteString(`
		select action_id, action_type, actor_id, target_id, community_id, reason, duration_ms, metadata, created_at
		from action_records
		where community_id = $1`)
	args := []any{communityID}

	add := func(cond string, val any) {
		args = append(args, val)
		query.WriteString(" and " + cond + "$" + strconv.Itoa(len(args)))
	}
	if f.ActorID != "" {
		add("actor_id = ", f.ActorID)
	}
	if f.TargetID != "" {
		add("target_id = ", f.TargetID)
	}
	if f.ActionType != "" {
		add("action_type = ", string(f.ActionType))
	}
	if !f.Since.IsZero() {
		add("created_at >= ", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		add("created_at <= ", f.Until.UTC())
	}

	args = append(args, f.Limit)
	query.WriteString(" order by created_at desc limit $" + strconv.Itoa(len(args)))
	args = append(args, f.Offset)
	query.WriteString(" offset $" + strconv.Itoa(len(args)))

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []moderation.ActionRecord
	for rows.Next() {
		rec, err := scanActionRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanActionRecord(row rowScanner) (*moderation.ActionRecord, error) {
	var (
		rec        moderation.ActionRecord
		actionType string
		durationMS int64
		rawMeta    []byte
	)
	err := row.Scan(&rec.ActionID, &actionType, &rec.ActorID, &rec.TargetID,
		&rec.CommunityID, &rec.Reason, &durationMS, &rawMeta, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.ActionType = moderation.ActionType(actionType)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.Metadata = map[string]any{}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &rec, nil
}
