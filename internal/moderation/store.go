package moderation

import (
	"context"
	"time"
)

// Store describes persistence required by the moderation subsystem.
type Store interface {
	Assignments() AssignmentStore
	Actions() ActionStore
	Appeals() AppealStore
	Flags() FlagStore
}

// AssignmentStore manages role assignments. Upsert must deactivate any
// previously active assignment for the same (user, community) in the
// same logical write.
type AssignmentStore interface {
	Upsert(ctx context.Context, a Assignment) error
	Active(ctx context.Context, userID, communityID string, now time.Time) (*Assignment, error)
	DeactivateByCredential(ctx context.Context, credentialRef string) error
	ActiveByCommunity(ctx context.Context, communityID string, minLevel, limit int, now time.Time) ([]Assignment, error)
}

// ActionStore appends and queries immutable action records.
type ActionStore interface {
	Append(ctx context.Context, rec ActionRecord) error
	Get(ctx context.Context, actionID string) (*ActionRecord, error)
	List(ctx context.Context, communityID string, f ActionFilter) ([]ActionRecord, error)
}

// AppealStore manages appeal records. Transition must be a single
// conditional update: it applies the status change only when the current
// status is one of from, and reports whether it did. Two concurrent
// resolutions of the same appeal therefore apply at most once.
type AppealStore interface {
	Create(ctx context.Context, ap Appeal) error
	Get(ctx context.Context, appealID string) (*Appeal, error)
	ByActionAndAppealer(ctx context.Context, actionID, appealerID string) (*Appeal, error)
	Transition(ctx context.Context, appealID string, from []AppealStatus, to AppealStatus, resolverID, reason string, at time.Time) (bool, error)
}

// FlagStore manages per-community feature flags.
type FlagStore interface {
	Upsert(ctx context.Context, flag FeatureFlag) error
	Get(ctx context.Context, communityID string, feature Feature) (*FeatureFlag, error)
	All(ctx context.Context, communityID string) ([]FeatureFlag, error)
}

// AssignmentCache is a bounded read-through cache over assignments,
// keyed by (user, community). Concurrent refreshes of the same key are
// last-writer-wins.
type AssignmentCache interface {
	Get(ctx context.Context, userID, communityID string) (*Assignment, error)
	Put(ctx context.Context, a Assignment) error
	// Invalidate deactivates the stored assignment backed by
	// credentialRef and drops the memory entry.
	Invalidate(ctx context.Context, userID, communityID, credentialRef string) error
}

// HistoryRecorder mirrors action records into a secondary store other
// service instances can read. Writes are best effort; failures must
// never fail the primary operation.
type HistoryRecorder interface {
	Append(ctx context.Context, rec ActionRecord) error
}
