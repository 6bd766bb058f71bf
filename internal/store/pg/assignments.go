package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/snailscoop/modauthority/internal/moderation"
)

type assignmentStore struct {
	db *sql.DB
}

// Upsert inserts the assignment and deactivates any previously active
// one for the same (user, community) in the same transaction, keeping
// the single-active invariant without read-then-write races.
func (s *assignmentStore) Upsert(ctx context.Context, a moderation.Assignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		update moderation_assignments
		set active = false
		where user_id = $1 and community_id = $2 and active
	`, a.UserID, a.CommunityID); err != nil {
		return err
	}

	var validUntil any
	if !a.ValidUntil.IsZero() {
		validUntil = a.ValidUntil.UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		insert into moderation_assignments
			(id, user_id, community_id, role, assigned_by, credential_ref, valid_from, valid_until, active, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, a.ID, a.UserID, a.CommunityID, string(a.Role), a.AssignedBy, a.CredentialRef,
		a.ValidFrom.UTC(), validUntil, a.Active, a.CreatedAt.UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *assignmentStore) Active(ctx context.Context, userID, communityID string, now time.Time) (*moderation.Assignment, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, community_id, role, assigned_by, credential_ref, valid_from, valid_until, active, created_at
		from moderation_assignments
		where user_id = $1 and community_id = $2 and active
		  and valid_from <= $3
		  and (valid_until is null or valid_until > $3)
		order by created_at desc
		limit 1
	`, userID, communityID, now.UTC())

	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *assignmentStore) DeactivateByCredential(ctx context.Context, credentialRef string) error {
	_, err := s.db.ExecContext(ctx, `
		update moderation_assignments set active = false where credential_ref = $1
	`, credentialRef)
	return err
}

func (s *assignmentStore) ActiveByCommunity(ctx context.Context, communityID string, minLevel, limit int, now time.Time) ([]moderation.Assignment, error) {
	if limit <= 0 {
		limit = 10
	}
	roleNames := make([]string, 0, len(moderation.Roles))
	for name, role := range moderation.Roles {
		if role.Level >= minLevel {
			roleNames = append(roleNames, string(name))
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, community_id, role, assigned_by, credential_ref, valid_from, valid_until, active, created_at
		from moderation_assignments
		where community_id = $1 and active
		  and valid_from <= $2
		  and (valid_until is null or valid_until > $2)
		  and role = any($3)
		order by created_at desc
		limit $4
	`, communityID, now.UTC(), roleNames, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []moderation.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*moderation.Assignment, error) {
	var (
		a          moderation.Assignment
		role       string
		validUntil sql.NullTime
	)
	err := row.Scan(&a.ID, &a.UserID, &a.CommunityID, &role, &a.AssignedBy,
		&a.CredentialRef, &a.ValidFrom, &validUntil, &a.Active, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Role = moderation.RoleName(role)
	if validUntil.Valid {
		a.ValidUntil = validUntil.Time
	}
	return &a, nil
}
