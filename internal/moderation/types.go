package moderation

import "time"

// Assignment binds a user to a role within a community, derived from an
// externally issued credential. At most one active assignment exists per
// (user, community); superseded assignments are deactivated, never
// deleted, so the trail stays auditable.
type Assignment struct {
	ID            string
	UserID        string
	CommunityID   string
	Role          RoleName
	AssignedBy    string
	CredentialRef string
	ValidFrom     time.Time
	ValidUntil    time.Time
	Active        bool
	CreatedAt     time.Time
}

// Valid reports whether the assignment grants authority at the given
// instant. Both the active flag and the validity window must hold.
func (a Assignment) Valid(now time.Time) bool {
	if !a.Active {
		return false
	}
	if now.Before(a.ValidFrom) {
		return false
	}
	return a.ValidUntil.IsZero() || now.Before(a.ValidUntil)
}

// ActionRecord is the immutable audit record of one executed action.
type ActionRecord struct {
	ActionID    string
	ActionType  ActionType
	ActorID     string
	TargetID    string
	CommunityID string
	Reason      string
	Duration    time.Duration
	Metadata    map[string]any
	CreatedAt   time.Time
}

// AppealStatus is the state of an appeal.
type AppealStatus string

const (
	AppealPending     AppealStatus = "pending"
	AppealUnderReview AppealStatus = "under_review"
	AppealEscalated   AppealStatus = "escalated"
	AppealApproved    AppealStatus = "approved"
	AppealRejected    AppealStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s AppealStatus) Terminal() bool {
	return s == AppealApproved || s == AppealRejected
}

// appealTransitions is the closed transition table of the appeal state
// machine. Terminal states are absorbing.
var appealTransitions = map[AppealStatus][]AppealStatus{
	AppealPending:     {AppealUnderReview, AppealEscalated, AppealApproved, AppealRejected},
	AppealUnderReview: {AppealEscalated, AppealApproved, AppealRejected},
	AppealEscalated:   {AppealApproved, AppealRejected},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to AppealStatus) bool {
	for _, next := range appealTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Appeal tracks one user's challenge of one recorded action.
type Appeal struct {
	AppealID         string
	ActionID         string
	AppealerID       string
	Reason           string
	Status           AppealStatus
	ResolverID       string
	ResolutionReason string
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

// FeatureFlag is one community's setting for one opt-in feature.
// Features are implicitly disabled until the first explicit toggle.
type FeatureFlag struct {
	CommunityID string
	Feature     Feature
	Enabled     bool
	EnabledBy   string
	EnabledAt   time.Time
	Settings    map[string]any
}

// Resolution is the outcome of an authority lookup.
type Resolution struct {
	Verified bool
	Level    int
	Role     RoleName
	Method   string
	Message  string
}

// Resolution methods, in strategy order.
const (
	MethodPlatformAdmin = "platform_admin"
	MethodStakeProof    = "stake_proof"
	MethodCachedCred    = "cached_credential"
	MethodIssuerCred    = "issued_credential"
)

// ActionRequest is one requested moderation action.
type ActionRequest struct {
	Type        ActionType
	ActorID     string
	TargetID    string
	CommunityID string
	Reason      string
	Duration    time.Duration
	MessageID   string
}

// ActionResult reports the outcome of executing an action. Applied is
// true once the platform side effect happened, even if the audit write
// failed afterwards; callers must not treat such an action as lost.
type ActionResult struct {
	Success  bool
	Applied  bool
	Message  string
	ActionID string
}

// ActionFilter narrows audit queries.
type ActionFilter struct {
	ActorID    string
	TargetID   string
	ActionType ActionType
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}
