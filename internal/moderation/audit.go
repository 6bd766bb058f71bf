package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/snailscoop/modauthority/internal/ids"
	"github.com/snailscoop/modauthority/internal/obs"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// AuditTrail owns the append-only record of executed actions. The
// primary write is the only step that can fail the operation; the
// cross-instance mirror and notifications are best effort.
type AuditTrail struct {
	actions ActionStore
	history HistoryRecorder
	notify  *Notifier
	now     func() time.Time
}

// AuditOption configures an AuditTrail.
type AuditOption func(*AuditTrail)

// WithAuditClock overrides the time source, for tests.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(t *AuditTrail) { t.now = now }
}

// NewAuditTrail builds the trail. history and notify may be nil.
func NewAuditTrail(actions ActionStore, history HistoryRecorder, notify *Notifier, opts ...AuditOption) *AuditTrail {
	if history == nil {
		history = noopRecorder{}
	}
	t := &AuditTrail{actions: actions, history: history, notify: notify, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type noopRecorder struct{}

func (noopRecorder) Append(ctx context.Context, rec ActionRecord) error { return nil }

// Record appends one immutable action record. ActionID and CreatedAt
// are assigned here; callers never choose them.
func (t *AuditTrail) Record(ctx context.Context, rec ActionRecord) (ActionRecord, error) {
	if rec.ActionType == "" || rec.ActorID == "" || rec.CommunityID == "" {
		return ActionRecord{}, fmt.Errorf("%w: action type, actor and community are required", ErrValidation)
	}
	rec.ActionID = ids.NewAction()
	rec.CreatedAt = t.now().UTC()
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}

	if err := t.actions.Append(ctx, rec); err != nil {
		return ActionRecord{}, fmt.Errorf("%w: append action record: %v", ErrStorage, err)
	}

	if err := t.history.Append(ctx, rec); err != nil {
		obs.ObserveSecondaryFailure("history_mirror")
		obs.LogEvent("history_mirror_failed", map[string]any{
			"action_id": rec.ActionID, "error": err.Error(),
		})
	}

	if t.notify != nil {
		t.notify.ActionRecorded(ctx, rec)
	}

	obs.LogEvent("action_recorded", map[string]any{
		"action_id": rec.ActionID,
		"type":      string(rec.ActionType),
		"actor":     rec.ActorID,
		"target":    rec.TargetID,
		"community": rec.CommunityID,
	})
	return rec, nil
}

// Get loads one record by id.
func (t *AuditTrail) Get(ctx context.Context, actionID string) (*ActionRecord, error) {
	if !ids.HasPrefix(actionID, ids.PrefixAction) {
		return nil, fmt.Errorf("%w: malformed action id %q", ErrValidation, actionID)
	}
	rec, err := t.actions.Get(ctx, actionID)
	if err != nil {
		return nil, fmt.Errorf("%w: load action record: %v", ErrStorage, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: action %s", ErrNotFound, actionID)
	}
	return rec, nil
}

// Query returns filtered history for a community, newest first.
func (t *AuditTrail) Query(ctx context.Context, communityID string, f ActionFilter) ([]ActionRecord, error) {
	if communityID == "" {
		return nil, fmt.Errorf("%w: community is required", ErrValidation)
	}
	if f.ActionType != "" {
		if _, err := PermissionFor(f.ActionType); err != nil {
			return nil, err
		}
	}
	if f.Limit <= 0 {
		f.Limit = defaultQueryLimit
	}
	if f.Limit > maxQueryLimit {
		f.Limit = maxQueryLimit
	}
	recs, err := t.actions.List(ctx, communityID, f)
	if err != nil {
		return nil, fmt.Errorf("%w: query action records: %v", ErrStorage, err)
	}
	return recs, nil
}
