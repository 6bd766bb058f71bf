package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// recordAction executes a ban by admin-1 against user-7 and returns its id.
func recordAction(t *testing.T, f *fixture, typ ActionType) string {
	t.Helper()
	result, err := f.executor.Execute(context.Background(), ActionRequest{
		Type: typ, ActorID: "admin-1", TargetID: "user-7",
		CommunityID: "chat-1", Reason: "test",
	})
	if err != nil {
		t.Fatalf("execute %s: %v", typ, err)
	}
	return result.ActionID
}

func TestFileAppealByTarget(t *testing.T) {
	f := newFixture()
	actionID := recordAction(t, f, ActionBan)

	ap, err := f.appeals.File(context.Background(), actionID, "user-7", "unfair")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if ap.Status != AppealPending {
		t.Errorf("status = %s, want pending", ap.Status)
	}
	if ap.ActionID != actionID {
		t.Errorf("action id = %s", ap.ActionID)
	}
}

func TestFileAppealIsIdempotent(t *testing.T) {
	f := newFixture()
	actionID := recordAction(t, f, ActionBan)
	ctx := context.Background()

	first, err := f.appeals.File(ctx, actionID, "user-7", "unfair")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	second, err := f.appeals.File(ctx, actionID, "user-7", "still unfair")
	if err != nil {
		t.Fatalf("second file: %v", err)
	}
	if first.AppealID != second.AppealID {
		t.Errorf("duplicate filing created a new appeal: %s vs %s", first.AppealID, second.AppealID)
	}
}

func TestFileAppealByThirdPartyNeedsHigherAuthority(t *testing.T) {
	f := newFixture()
	actionID := recordAction(t, f, ActionBan)
	ctx := context.Background()

	// a level-1 moderator cannot appeal a level-2 admin's action
	f.grantAssignment("mod-3", "chat-1", RoleGroupModerator, "cred-3")
	if _, err := f.appeals.File(ctx, actionID, "mod-3", "too harsh"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}

	// a platform moderator (level 4) can
	f.grantAssignment("pmod-1", "chat-1", RolePlatformModerator, "cred-pm")
	if _, err := f.appeals.File(ctx, actionID, "pmod-1", "policy violation"); err != nil {
		t.Fatalf("higher authority file: %v", err)
	}
}

func TestFileAppealUnknownAction(t *testing.T) {
	f := newFixture()

	if _, err := f.appeals.File(context.Background(), "act_missing", "user-7", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := f.appeals.File(context.Background(), "bogus", "user-7", "x"); !errors.Is(err, ErrValidation) {
		t.Fatalf("malformed id: err = %v, want ErrValidation", err)
	}
}

func TestUpdateStatusRequiresAppealAuthority(t *testing.T) {
	f := newFixture()
	actionID := recordAction(t, f, ActionBan)
	ctx := context.Background()
	ap, _ := f.appeals.File(ctx, actionID, "user-7", "unfair")

	// group_moderator lacks the appeal-management tag
	f.grantAssignment("mod-3", "chat-1", RoleGroupModerator, "cred-3")
	_, err := f.appeals.UpdateStatus(ctx, ap.AppealID, AppealUnderReview, "mod-3", "")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestUpdateStatusWalksStateMachine(t *testing.T) {
	f := newFixture()
	actionID := recordAction(t, f, ActionBan)
	ctx := context.Background()
	ap, _ := f.appeals.File(ctx, actionID, "user-7", "unfair")

	got, err := f.appeals.UpdateStatus(ctx, ap.AppealID, AppealUnderReview, "admin-1", "")
	if err != nil {
		t.Fatalf("to under_review: %v", err)
	}
	if got.Status != AppealUnderReview {
		t.Fatalf("status = %s", got.Status)
	}

	got, err = f.appeals.UpdateStatus(ctx, ap.AppealID, AppealRejected, "admin-1", "evidence stands")
	if err != nil {
		t.Fatalf("to rejected: %v", err)
	}
	if got.Status != AppealRejected || got.ResolverID != "admin-1" || got.ResolvedAt == nil {
		t.Fatalf("terminal fields not stamped: %+v", got)
	}

	// terminal states are absorbing
	if _, err := f.appeals.UpdateStatus(ctx, ap.AppealID, AppealApproved, "admin-1", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("transition out of terminal: err = %v, want ErrValidation", err)
	}
}

func TestUpdateStatusRejectsUnknownTarget(t *testing.T) {
	f := newFixture()
	actionID := recordAction(t, f, ActionBan)
	ctx := context.Background()
	ap, _ := f.appeals.File(ctx, actionID, "user-7", "unfair")

	if _, err := f.appeals.UpdateStatus(ctx, ap.AppealID, AppealPending, "admin-1", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("pending is not a transition target: err = %v", err)
	}
	if _, err := f.appeals.UpdateStatus(ctx, ap.AppealID, "limbo", "admin-1", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status: err = %v", err)
	}
}

func TestApprovedBanAppealUnbans(t *testing.T) {
	f := newFixture()
	actionID := recordAction(t, f, ActionBan)
	ctx := context.Background()
	ap, _ := f.appeals.File(ctx, actionID, "user-7", "unfair")

	got, err := f.appeals.UpdateStatus(ctx, ap.AppealID, AppealApproved, "admin-1", "mistake")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != AppealApproved {
		t.Fatalf("status = %s", got.Status)
	}
	if f.platform.callCount("unban:user-7") != 1 {
		t.Errorf("expected one compensating unban, calls: %v", f.platform.calls)
	}
}

func TestApprovedMuteAppealLiftsRestriction(t *testing.T) {
	f := newFixture()
	actionID := recordAction(t, f, ActionMute)
	ctx := context.Background()
	ap, _ := f.appeals.File(ctx, actionID, "user-7", "unfair")

	if _, err := f.appeals.UpdateStatus(ctx, ap.AppealID, AppealApproved, "admin-1", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// one restrict from the mute itself, one from lifting it
	if f.platform.callCount("restrict:user-7") != 2 {
		t.Errorf("expected a second restrict call to lift the mute, calls: %v", f.platform.calls)
	}
}

func TestApprovalCompensationFailureKeepsStatus(t *testing.T) {
	f := newFixture()
	actionID := recordAction(t, f, ActionBan)
	ctx := context.Background()
	ap, _ := f.appeals.File(ctx, actionID, "user-7", "unfair")

	f.platform.unbanErr = errors.New("gateway down")
	_, err := f.appeals.UpdateStatus(ctx, ap.AppealID, AppealApproved, "admin-1", "")
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("err = %v, want ErrExternalService", err)
	}

	// the status change already happened; only the reversal failed
	current, err := f.appeals.Get(ctx, ap.AppealID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Status != AppealApproved {
		t.Errorf("status = %s, want approved", current.Status)
	}
}

func TestConcurrentApprovalAppliesOneCompensation(t *testing.T) {
	f := newFixture()
	actionID := recordAction(t, f, ActionBan)
	ctx := context.Background()
	ap, _ := f.appeals.File(ctx, actionID, "user-7", "unfair")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.appeals.UpdateStatus(ctx, ap.AppealID, AppealApproved, "admin-1", "race")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrValidation) {
			t.Errorf("loser got unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("%d approvals succeeded, want exactly 1", wins)
	}
	if f.platform.callCount("unban:user-7") != 1 {
		t.Errorf("compensation ran %d times, want 1", f.platform.callCount("unban:user-7"))
	}
}
