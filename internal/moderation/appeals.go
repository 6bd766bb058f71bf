package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/snailscoop/modauthority/internal/ids"
	"github.com/snailscoop/modauthority/internal/obs"
	"github.com/snailscoop/modauthority/internal/platform"
)

// AppealWorkflow lets affected users challenge recorded actions and
// routes resolutions, including compensating platform calls when an
// appeal is approved. It owns Appeal records exclusively and never
// mutates action records.
type AppealWorkflow struct {
	appeals   AppealStore
	audit     *AuditTrail
	authority AuthorityResolver
	platform  platform.Client
	notify    *Notifier
	now       func() time.Time
}

// NewAppealWorkflow wires the workflow. notify may be nil.
func NewAppealWorkflow(appeals AppealStore, audit *AuditTrail, authority AuthorityResolver, pc platform.Client, notify *Notifier) *AppealWorkflow {
	return &AppealWorkflow{
		appeals:   appeals,
		audit:     audit,
		authority: authority,
		platform:  pc,
		notify:    notify,
		now:       time.Now,
	}
}

// File opens an appeal against a recorded action. The appealer must be
// the action's target, or must outrank the original actor's recorded
// authority level. Filing is idempotent per (action, appealer): a second
// attempt returns the existing appeal.
func (w *AppealWorkflow) File(ctx context.Context, actionID, appealerID, reason string) (Appeal, error) {
	if appealerID == "" {
		return Appeal{}, fmt.Errorf("%w: appealer is required", ErrValidation)
	}
	rec, err := w.audit.Get(ctx, actionID)
	if err != nil {
		return Appeal{}, err
	}

	if appealerID != rec.TargetID {
		res, err := w.authority.Resolve(ctx, appealerID, ActionAll, rec.CommunityID)
		if err != nil {
			return Appeal{}, err
		}
		actorLevel := recordedAuthorityLevel(rec)
		if !res.Verified || res.Level <= actorLevel {
			return Appeal{}, fmt.Errorf("%w: only the target or a higher authority may appeal this action", ErrPermissionDenied)
		}
	}

	if existing, err := w.appeals.ByActionAndAppealer(ctx, actionID, appealerID); err != nil {
		return Appeal{}, fmt.Errorf("%w: lookup appeal: %v", ErrStorage, err)
	} else if existing != nil {
		return *existing, nil
	}

	ap := Appeal{
		AppealID:   ids.NewAppeal(),
		ActionID:   actionID,
		AppealerID: appealerID,
		Reason:     reason,
		Status:     AppealPending,
		CreatedAt:  w.now().UTC(),
	}
	if err := w.appeals.Create(ctx, ap); err != nil {
		// lost a race with a concurrent filing for the same pair
		if existing, lookupErr := w.appeals.ByActionAndAppealer(ctx, actionID, appealerID); lookupErr == nil && existing != nil {
			return *existing, nil
		}
		return Appeal{}, fmt.Errorf("%w: create appeal: %v", ErrStorage, err)
	}

	if w.notify != nil {
		w.notify.AppealFiled(ctx, ap, *rec)
	}
	obs.ObserveAppeal(string(AppealPending))
	return ap, nil
}

// Get loads one appeal by id.
func (w *AppealWorkflow) Get(ctx context.Context, appealID string) (*Appeal, error) {
	if !ids.HasPrefix(appealID, ids.PrefixAppeal) {
		return nil, fmt.Errorf("%w: malformed appeal id %q", ErrValidation, appealID)
	}
	ap, err := w.appeals.Get(ctx, appealID)
	if err != nil {
		return nil, fmt.Errorf("%w: load appeal: %v", ErrStorage, err)
	}
	if ap == nil {
		return nil, fmt.Errorf("%w: appeal %s", ErrNotFound, appealID)
	}
	return ap, nil
}

// UpdateStatus moves an appeal through its state machine. The resolver
// must hold appeal-management authority in the action's community. The
// status change is one conditional store update, so two concurrent
// approvals of the same appeal apply exactly one compensating action.
func (w *AppealWorkflow) UpdateStatus(ctx context.Context, appealID string, to AppealStatus, resolverID, reason string) (Appeal, error) {
	ap, err := w.Get(ctx, appealID)
	if err != nil {
		return Appeal{}, err
	}
	rec, err := w.audit.Get(ctx, ap.ActionID)
	if err != nil {
		return Appeal{}, err
	}

	if err := w.authorizeReviewer(ctx, resolverID, rec.CommunityID); err != nil {
		return Appeal{}, err
	}

	from := transitionSources(to)
	if from == nil {
		return Appeal{}, fmt.Errorf("%w: %q is not a valid transition target", ErrValidation, to)
	}
	if !CanTransition(ap.Status, to) {
		return Appeal{}, fmt.Errorf("%w: cannot move appeal from %s to %s", ErrValidation, ap.Status, to)
	}

	applied, err := w.appeals.Transition(ctx, appealID, from, to, resolverID, reason, w.now().UTC())
	if err != nil {
		return Appeal{}, fmt.Errorf("%w: update appeal status: %v", ErrStorage, err)
	}
	if !applied {
		// someone else transitioned first; report against fresh state
		current, _ := w.appeals.Get(ctx, appealID)
		status := ap.Status
		if current != nil {
			status = current.Status
		}
		return Appeal{}, fmt.Errorf("%w: appeal already %s", ErrValidation, status)
	}

	updated, err := w.appeals.Get(ctx, appealID)
	if err != nil || updated == nil {
		return Appeal{}, fmt.Errorf("%w: reload appeal: %v", ErrStorage, err)
	}
	obs.ObserveAppeal(string(to))

	switch to {
	case AppealApproved:
		if err := w.compensate(ctx, *rec); err != nil {
			// status already moved; the reversal itself failed and the
			// caller has to retry the platform side manually
			return *updated, err
		}
		if w.notify != nil {
			w.notify.Notify(ctx, rec.TargetID,
				fmt.Sprintf("Your appeal %s was approved; the %s action has been reversed where possible.", appealID, rec.ActionType))
		}
	case AppealRejected:
		if w.notify != nil {
			w.notify.Notify(ctx, ap.AppealerID,
				fmt.Sprintf("Your appeal %s was rejected: %s", appealID, reason))
			w.notify.Notify(ctx, rec.ActorID,
				fmt.Sprintf("The appeal against your action %s was rejected.", rec.ActionID))
		}
	}
	return *updated, nil
}

// compensate reverses the original action where a reversal exists.
// Actions without a defined reversal only produce a notification; there
// is deliberately no generic undo.
func (w *AppealWorkflow) compensate(ctx context.Context, rec ActionRecord) error {
	switch rec.ActionType {
	case ActionBan, ActionCrossChatBan:
		if err := w.platform.UnbanMember(ctx, rec.CommunityID, rec.TargetID); err != nil {
			return fmt.Errorf("%w: unban member: %v", ErrExternalService, err)
		}
	case ActionMute:
		if err := w.platform.RestrictMember(ctx, rec.CommunityID, rec.TargetID, platform.Unrestricted(), time.Time{}); err != nil {
			return fmt.Errorf("%w: lift restriction: %v", ErrExternalService, err)
		}
	}
	return nil
}

func (w *AppealWorkflow) authorizeReviewer(ctx context.Context, resolverID, communityID string) error {
	if resolverID == "" {
		return fmt.Errorf("%w: resolver is required", ErrValidation)
	}
	res, err := w.authority.Resolve(ctx, resolverID, ActionAll, communityID)
	if err != nil {
		return err
	}
	if !res.Verified {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, res.Message)
	}
	role, ok := LookupRole(res.Role)
	if !ok || !role.HasTag(TagManageAppeals) {
		return fmt.Errorf("%w: %s may not manage appeals in %s", ErrPermissionDenied, resolverID, communityID)
	}
	return nil
}

// transitionSources returns the statuses a transition to `to` may start
// from, or nil when `to` is not a reachable target at all.
func transitionSources(to AppealStatus) []AppealStatus {
	switch to {
	case AppealUnderReview:
		return []AppealStatus{AppealPending}
	case AppealEscalated:
		return []AppealStatus{AppealPending, AppealUnderReview}
	case AppealApproved, AppealRejected:
		return []AppealStatus{AppealPending, AppealUnderReview, AppealEscalated}
	default:
		return nil
	}
}

// recordedAuthorityLevel reads the authority level stamped on the
// record, tolerating JSON round-trips that turn ints into float64.
func recordedAuthorityLevel(rec *ActionRecord) int {
	v, ok := rec.Metadata[MetaAuthorityLevel]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
