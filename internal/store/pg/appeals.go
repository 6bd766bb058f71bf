package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/snailscoop/modauthority/internal/moderation"
)

type appealStore struct {
	db *sql.DB
}

func (s *appealStore) Create(ctx context.Context, ap moderation.Appeal) error {
	// unique index on (action_id, appealer_id) turns duplicate filings
	// into an insert error the workflow resolves to the existing appeal
	_, err := s.db.ExecContext(ctx, `
		insert into appeals
			(appeal_id, action_id, appealer_id, reason, status, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, ap.AppealID, ap.ActionID, ap.AppealerID, ap.Reason, string(ap.Status), ap.CreatedAt.UTC())
	return err
}

func (s *appealStore) Get(ctx context.Context, appealID string) (*moderation.Appeal, error) {
	row := s.db.QueryRowContext(ctx, `
		select appeal_id, action_id, appealer_id, reason, status, resolver_id, resolution_reason, created_at, resolved_at
		from appeals
		where appeal_id = $1
	`, appealID)
	ap, err := scanAppeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ap, nil
}

func (s *appealStore) ByActionAndAppealer(ctx context.Context, actionID, appealerID string) (*moderation.Appeal, error) {
	row := s.db.QueryRowContext(ctx, `
		select appeal_id, action_id, appealer_id, reason, status, resolver_id, resolution_reason, created_at, resolved_at
		from appeals
		where action_id = $1 and appealer_id = $2
	`, actionID, appealerID)
	ap, err := scanAppeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ap, nil
}

// Transition is the single conditional update that makes concurrent
// resolutions safe: the status only changes when the current value is
// still one of `from`, and the affected-row count says whether this
// caller won.
func (s *appealStore) Transition(ctx context.Context, appealID string, from []moderation.AppealStatus, to moderation.AppealStatus, resolverID, reason string, at time.Time) (bool, error) {
	states := make([]string, len(from))
	for i, st := range from {
		states[i] = string(st)
	}

	var (
		res sql.Result
		err error
	)
	if to.Terminal() {
		res, err = s.db.ExecContext(ctx, `
			update appeals
			set status = $2, resolver_id = $3, resolution_reason = $4, resolved_at = $5
			where appeal_id = $1 and status = any($6)
		`, appealID, string(to), resolverID, reason, at.UTC(), states)
	} else {
		res, err = s.db.ExecContext(ctx, `
			update appeals
			set status = $2
			where appeal_id = $1 and status = any($3)
		`, appealID, string(to), states)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanAppeal(row rowScanner) (*moderation.Appeal, error) {
	var (
		ap         moderation.Appeal
		status     string
		resolver   sql.NullString
		resolution sql.NullString
		resolvedAt sql.NullTime
	)
	err := row.Scan(&ap.AppealID, &ap.ActionID, &ap.AppealerID, &ap.Reason,
		&status, &resolver, &resolution, &ap.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	ap.Status = moderation.AppealStatus(status)
	if resolver.Valid {
		ap.ResolverID = resolver.String
	}
	if resolution.Valid {
		ap.ResolutionReason = resolution.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		ap.ResolvedAt = &t
	}
	return &ap, nil
}
