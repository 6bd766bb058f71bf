package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/snailscoop/modauthority/internal/obs"
	"github.com/snailscoop/modauthority/internal/platform"
)

// maxModeratorNotices bounds how many moderators are pinged about one
// destructive action.
const maxModeratorNotices = 3

// destructive actions trigger moderator notifications on record.
var destructiveActions = map[ActionType]bool{
	ActionBan:          true,
	ActionKick:         true,
	ActionCrossChatBan: true,
}

// Notifier delivers best-effort messages around recorded actions and
// appeal transitions. Every send failure is logged and swallowed; a
// notification never changes the outcome of the operation it follows.
type Notifier struct {
	platform    platform.Client
	assignments AssignmentStore
	now         func() time.Time
}

// NewNotifier builds a notifier. assignments may be nil, which disables
// moderator fan-out.
func NewNotifier(pc platform.Client, assignments AssignmentStore) *Notifier {
	return &Notifier{platform: pc, assignments: assignments, now: time.Now}
}

// ActionRecorded notifies the target of a recorded action and, for
// destructive actions, up to maxModeratorNotices other moderators.
func (n *Notifier) ActionRecorded(ctx context.Context, rec ActionRecord) {
	text := fmt.Sprintf("Moderation action %s was taken against you in community %s. Reason: %s. Reference: %s",
		rec.ActionType, rec.CommunityID, rec.Reason, rec.ActionID)
	n.send(ctx, rec.TargetID, text, "action_target")

	if !destructiveActions[rec.ActionType] || n.assignments == nil {
		return
	}
	mods, err := n.assignments.ActiveByCommunity(ctx, rec.CommunityID, Roles[RoleGroupModerator].Level, maxModeratorNotices+2, n.now())
	if err != nil {
		obs.ObserveSecondaryFailure("moderator_lookup")
		obs.LogEvent("notify_moderator_lookup_failed", map[string]any{
			"community": rec.CommunityID, "error": err.Error(),
		})
		return
	}
	sent := 0
	for _, m := range mods {
		if m.UserID == rec.ActorID || m.UserID == rec.TargetID {
			continue
		}
		if sent >= maxModeratorNotices {
			break
		}
		n.send(ctx, m.UserID,
			fmt.Sprintf("Action %s by %s against %s in %s: %s",
				rec.ActionType, rec.ActorID, rec.TargetID, rec.CommunityID, rec.Reason),
			"action_moderator")
		sent++
	}
}

// AppealFiled pings reviewers who can manage appeals in the community.
func (n *Notifier) AppealFiled(ctx context.Context, ap Appeal, rec ActionRecord) {
	if n.assignments == nil {
		return
	}
	reviewers, err := n.assignments.ActiveByCommunity(ctx, rec.CommunityID, Roles[RoleGroupAdmin].Level, maxModeratorNotices+2, n.now())
	if err != nil {
		obs.ObserveSecondaryFailure("reviewer_lookup")
		obs.LogEvent("notify_reviewer_lookup_failed", map[string]any{
			"community": rec.CommunityID, "error": err.Error(),
		})
		return
	}
	sent := 0
	for _, rv := range reviewers {
		role, ok := LookupRole(rv.Role)
		if !ok || !role.HasTag(TagManageAppeals) || rv.UserID == ap.AppealerID {
			continue
		}
		if sent >= maxModeratorNotices {
			break
		}
		n.send(ctx, rv.UserID,
			fmt.Sprintf("Appeal %s filed against action %s (%s) in %s.",
				ap.AppealID, rec.ActionID, rec.ActionType, rec.CommunityID),
			"appeal_reviewer")
		sent++
	}
}

// Notify sends a single message to one user.
func (n *Notifier) Notify(ctx context.Context, userID, text string) {
	n.send(ctx, userID, text, "direct")
}

func (n *Notifier) send(ctx context.Context, recipientID, text, kind string) {
	if recipientID == "" {
		return
	}
	if err := n.platform.SendMessage(ctx, recipientID, text); err != nil {
		obs.ObserveSecondaryFailure("notification")
		obs.LogEvent("notification_failed", map[string]any{
			"recipient": recipientID, "kind": kind, "error": err.Error(),
		})
	}
}
