package moderation

import "errors"

var (
	// ErrPermissionDenied covers insufficient level, wrong scope and
	// missing feature opt-in. Resolved locally, user presentable.
	ErrPermissionDenied = errors.New("moderation: permission denied")

	// ErrNotFound covers unknown action, appeal, assignment and feature
	// identifiers.
	ErrNotFound = errors.New("moderation: not found")

	// ErrValidation covers malformed action types, invalid status
	// transitions and duplicate appeals.
	ErrValidation = errors.New("moderation: validation failed")

	// ErrExternalService covers failed or timed-out messaging platform
	// and credential issuer calls.
	ErrExternalService = errors.New("moderation: external service failure")

	// ErrStorage covers persistent store read/write failures.
	ErrStorage = errors.New("moderation: storage failure")
)
