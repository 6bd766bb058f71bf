package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/snailscoop/modauthority/internal/moderation"
)

type flagStore struct {
	db *sql.DB
}

// Upsert writes the flag idempotently; toggling a feature twice leaves
// exactly one row per (community, feature).
func (s *flagStore) Upsert(ctx context.Context, flag moderation.FeatureFlag) error {
	settings, err := json.Marshal(flag.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into feature_flags (community_id, feature, enabled, enabled_by, enabled_at, settings)
		values ($1,$2,$3,$4,$5,$6)
		on conflict (community_id, feature) do update
		set enabled = excluded.enabled,
		    enabled_by = excluded.enabled_by,
		    enabled_at = excluded.enabled_at,
		    settings = excluded.settings
	`, flag.CommunityID, string(flag.Feature), flag.Enabled, flag.EnabledBy,
		flag.EnabledAt.UTC(), settings)
	return err
}

func (s *flagStore) Get(ctx context.Context, communityID string, feature moderation.Feature) (*moderation.FeatureFlag, error) {
	row := s.db.QueryRowContext(ctx, `
		select community_id, feature, enabled, enabled_by, enabled_at, settings
		from feature_flags
		where community_id = $1 and feature = $2
	`, communityID, string(feature))
	flag, err := scanFlag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return flag, nil
}

func (s *flagStore) All(ctx context.Context, communityID string) ([]moderation.FeatureFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		select community_id, feature, enabled, enabled_by, enabled_at, settings
		from feature_flags
		where community_id = $1
	`, communityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []moderation.FeatureFlag
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *flag)
	}
	return out, rows.Err()
}

func scanFlag(row rowScanner) (*moderation.FeatureFlag, error) {
	var (
		flag        moderation.FeatureFlag
		feature     string
		rawSettings []byte
	)
	err := row.Scan(&flag.CommunityID, &feature, &flag.Enabled, &flag.EnabledBy,
		&flag.EnabledAt, &rawSettings)
	if err != nil {
		return nil, err
	}
	flag.Feature = moderation.Feature(feature)
	if len(rawSettings) > 0 {
		if err := json.Unmarshal(rawSettings, &flag.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &flag, nil
}
