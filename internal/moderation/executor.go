package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/snailscoop/modauthority/internal/credential"
	"github.com/snailscoop/modauthority/internal/obs"
	"github.com/snailscoop/modauthority/internal/platform"
)

// Metadata keys stamped on every action record. The appeal workflow
// reads the recorded authority level when someone appeals on a target's
// behalf.
const (
	MetaAuthorityMethod = "authority_method"
	MetaAuthorityLevel  = "authority_level"
	MetaAuthorityRole   = "authority_role"
	MetaCredentialRef   = "credential_ref"
)

const defaultMuteDuration = time.Hour

// AuthorityResolver is the resolver capability the executor and the
// other workflows depend on.
type AuthorityResolver interface {
	Resolve(ctx context.Context, actorID string, action ActionType, communityID string) (Resolution, error)
	Invalidate(ctx context.Context, userID, communityID, credentialRef string) error
}

// Executor performs moderation actions: authority check first, then the
// platform side effect, then the audit write. A denied request never
// touches the platform; a failed platform call never writes audit.
type Executor struct {
	authority AuthorityResolver
	platform  platform.Client
	audit     *AuditTrail
	cache     AssignmentCache
	issuer    credential.Issuer
	issuerDID string
	now       func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithIssuer enables the moderator-credential actions (add_moderator,
// remove_moderator, revoke_credential). issuerDID is the DID this
// service issues under.
func WithIssuer(issuer credential.Issuer, issuerDID string) ExecutorOption {
	return func(e *Executor) {
		e.issuer = issuer
		e.issuerDID = issuerDID
	}
}

// WithExecutorClock overrides the time source, for tests.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// NewExecutor wires the executor.
func NewExecutor(authority AuthorityResolver, pc platform.Client, audit *AuditTrail, cache AssignmentCache, opts ...ExecutorOption) *Executor {
	e := &Executor{
		authority: authority,
		platform:  pc,
		audit:     audit,
		cache:     cache,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one moderation action end to end. The returned result is
// always meaningful: on a permission denial Success is false and Message
// carries the resolver's denial text; when the side effect landed but
// the audit write failed, Applied is true and the error wraps
// ErrStorage so callers can surface "applied but not recorded".
func (e *Executor) Execute(ctx context.Context, req ActionRequest) (ActionResult, error) {
	if req.TargetID == "" && req.Type != ActionAnnounce && req.Type != ActionPin {
		return ActionResult{}, fmt.Errorf("%w: target is required for %s", ErrValidation, req.Type)
	}

	res, err := e.authority.Resolve(ctx, req.ActorID, req.Type, req.CommunityID)
	if err != nil {
		return ActionResult{}, err
	}
	if !res.Verified {
		obs.ObserveAction(string(req.Type), "denied")
		return ActionResult{Success: false, Message: res.Message},
			fmt.Errorf("%w: %s", ErrPermissionDenied, res.Message)
	}

	credRef, err := e.dispatch(ctx, req, res)
	if err != nil {
		obs.ObserveAction(string(req.Type), "failed")
		return ActionResult{Success: false, Message: err.Error()}, err
	}

	meta := map[string]any{
		MetaAuthorityMethod: res.Method,
		MetaAuthorityLevel:  res.Level,
		MetaAuthorityRole:   string(res.Role),
	}
	if credRef != "" {
		meta[MetaCredentialRef] = credRef
	}
	rec, err := e.audit.Record(ctx, ActionRecord{
		ActionType:  req.Type,
		ActorID:     req.ActorID,
		TargetID:    req.TargetID,
		CommunityID: req.CommunityID,
		Reason:      req.Reason,
		Duration:    req.Duration,
		Metadata:    meta,
	})
	if err != nil {
		obs.ObserveAction(string(req.Type), "unrecorded")
		return ActionResult{
			Success: false,
			Applied: true,
			Message: "action applied but not recorded",
		}, err
	}

	obs.ObserveAction(string(req.Type), "success")
	return ActionResult{
		Success:  true,
		Applied:  true,
		Message:  fmt.Sprintf("%s applied to %s", req.Type, req.TargetID),
		ActionID: rec.ActionID,
	}, nil
}

// dispatch maps the action type onto platform (and issuer) calls. It
// returns the credential reference involved, if any.
func (e *Executor) dispatch(ctx context.Context, req ActionRequest, res Resolution) (string, error) {
	switch req.Type {
	case ActionWarn, ActionCrossChatWarn:
		text := fmt.Sprintf("You have been warned in community %s: %s", req.CommunityID, req.Reason)
		if err := e.platform.SendMessage(ctx, req.TargetID, text); err != nil {
			return "", e.platformErr("send warning", err)
		}
		return "", nil

	case ActionMute:
		d := req.Duration
		if d <= 0 {
			d = defaultMuteDuration
		}
		until := e.now().Add(d)
		if err := e.platform.RestrictMember(ctx, req.CommunityID, req.TargetID, platform.Restrictions{}, until); err != nil {
			return "", e.platformErr("restrict member", err)
		}
		return "", nil

	case ActionDelete:
		if req.MessageID == "" {
			return "", fmt.Errorf("%w: message id is required for delete", ErrValidation)
		}
		if err := e.platform.DeleteMessage(ctx, req.CommunityID, req.MessageID); err != nil {
			return "", e.platformErr("delete message", err)
		}
		return "", nil

	case ActionKick:
		// ban followed by unban: removes the member but lets them rejoin
		if err := e.platform.BanMember(ctx, req.CommunityID, req.TargetID, nil); err != nil {
			return "", e.platformErr("kick member", err)
		}
		if err := e.platform.UnbanMember(ctx, req.CommunityID, req.TargetID); err != nil {
			return "", e.platformErr("unban after kick", err)
		}
		return "", nil

	case ActionBan, ActionCrossChatBan:
		var until *time.Time
		if req.Duration > 0 {
			u := e.now().Add(req.Duration)
			until = &u
		}
		if err := e.platform.BanMember(ctx, req.CommunityID, req.TargetID, until); err != nil {
			return "", e.platformErr("ban member", err)
		}
		return "", nil

	case ActionPin:
		if req.MessageID == "" {
			return "", fmt.Errorf("%w: message id is required for pin", ErrValidation)
		}
		if err := e.platform.PinMessage(ctx, req.CommunityID, req.MessageID, false); err != nil {
			return "", e.platformErr("pin message", err)
		}
		return "", nil

	case ActionAnnounce:
		if req.Reason == "" {
			return "", fmt.Errorf("%w: announcement text is required", ErrValidation)
		}
		if err := e.platform.SendMessage(ctx, req.CommunityID, req.Reason); err != nil {
			return "", e.platformErr("send announcement", err)
		}
		return "", nil

	case ActionAddModerator:
		return e.addModerator(ctx, req)

	case ActionRemoveModerator, ActionRevokeCred:
		return e.revokeModerator(ctx, req)

	default:
		// manage_registry and toggle_features carry permission entries
		// but are handled by their own workflows, not the executor
		return "", fmt.Errorf("%w: %s is not dispatchable through the action executor", ErrValidation, req.Type)
	}
}

func (e *Executor) addModerator(ctx context.Context, req ActionRequest) (string, error) {
	if e.issuer == nil {
		return "", fmt.Errorf("%w: no credential issuer configured", ErrValidation)
	}
	holderDID, err := e.issuer.DIDFor(ctx, req.TargetID)
	if err != nil {
		return "", e.issuerErr("resolve holder did", err)
	}
	cred, err := e.issuer.Issue(ctx, e.issuerDID, holderDID, credential.TypeModeration, map[string]any{
		"role":        string(RoleGroupModerator),
		"communities": []string{req.CommunityID},
		"assigned_by": req.ActorID,
	})
	if err != nil {
		return "", e.issuerErr("issue credential", err)
	}
	return cred.ID, nil
}

func (e *Executor) revokeModerator(ctx context.Context, req ActionRequest) (string, error) {
	if e.issuer == nil {
		return "", fmt.Errorf("%w: no credential issuer configured", ErrValidation)
	}
	a, err := e.cache.Get(ctx, req.TargetID, req.CommunityID)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "", fmt.Errorf("%w: no active assignment for %s in %s", ErrNotFound, req.TargetID, req.CommunityID)
	}
	if err := e.issuer.Revoke(ctx, a.CredentialRef, req.Reason); err != nil {
		return "", e.issuerErr("revoke credential", err)
	}
	if err := e.authority.Invalidate(ctx, req.TargetID, req.CommunityID, a.CredentialRef); err != nil {
		// the issuer already revoked; the local assignment will also
		// stop granting once the validity check sees the revocation,
		// so surface the storage problem without undoing anything
		return a.CredentialRef, err
	}
	return a.CredentialRef, nil
}

func (e *Executor) platformErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrExternalService, op, err)
}

func (e *Executor) issuerErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrExternalService, op, err)
}
