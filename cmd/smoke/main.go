// Command smoke exercises the moderation flows end to end against the
// in-memory store and a local fake chat platform. Useful as a quick
// sanity run without Postgres, Redis or external services.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/snailscoop/modauthority/internal/credcache"
	"github.com/snailscoop/modauthority/internal/moderation"
	"github.com/snailscoop/modauthority/internal/obs"
	"github.com/snailscoop/modauthority/internal/platform"
)

// fakePlatform is an in-process platform.Client that records calls.
type fakePlatform struct {
	admins map[string]bool
	calls  []string
}

func (f *fakePlatform) AdminStatus(ctx context.Context, communityID, userID string) (bool, error) {
	return f.admins[userID], nil
}

func (f *fakePlatform) SendMessage(ctx context.Context, recipientID, text string) error {
	f.calls = append(f.calls, "message->"+recipientID)
	return nil
}

func (f *fakePlatform) RestrictMember(ctx context.Context, communityID, userID string, r platform.Restrictions, until time.Time) error {
	f.calls = append(f.calls, "restrict->"+userID)
	return nil
}

func (f *fakePlatform) BanMember(ctx context.Context, communityID, userID string, until *time.Time) error {
	f.calls = append(f.calls, "ban->"+userID)
	return nil
}

func (f *fakePlatform) UnbanMember(ctx context.Context, communityID, userID string) error {
	f.calls = append(f.calls, "unban->"+userID)
	return nil
}

func (f *fakePlatform) DeleteMessage(ctx context.Context, communityID, messageID string) error {
	f.calls = append(f.calls, "delete->"+messageID)
	return nil
}

func (f *fakePlatform) PinMessage(ctx context.Context, communityID, messageID string, silent bool) error {
	f.calls = append(f.calls, "pin->"+messageID)
	return nil
}

type fakeStake struct{ holders map[string]bool }

func (f fakeStake) HoldsQualifyingStake(ctx context.Context, userID string) (bool, error) {
	return f.holders[userID], nil
}

func main() {
	obs.Init()
	ctx := context.Background()
	community := "chat-100"

	gateway := &fakePlatform{admins: map[string]bool{"admin-1": true}}
	store := moderation.NewMemStore()
	cache := credcache.New(store.Assignments(), 0, 0)
	gate := moderation.NewFeatureGate(store.Flags())
	resolver := moderation.NewResolver(gateway, nil, cache, gate,
		moderation.WithStakeVerifier(fakeStake{holders: map[string]bool{"mod-9": true}}))
	gate.BindAuthority(resolver)

	notifier := moderation.NewNotifier(gateway, store.Assignments())
	audit := moderation.NewAuditTrail(store.Actions(), nil, notifier)
	executor := moderation.NewExecutor(resolver, gateway, audit, cache)
	appeals := moderation.NewAppealWorkflow(store.Appeals(), audit, resolver, gateway, notifier)

	res, err := resolver.Resolve(ctx, "admin-1", moderation.ActionBan, community)
	check("resolve admin", err)
	step("admin-1 resolves for ban: verified=%v method=%s level=%d", res.Verified, res.Method, res.Level)

	result, err := executor.Execute(ctx, moderation.ActionRequest{
		Type: moderation.ActionWarn, ActorID: "admin-1", TargetID: "user-7",
		CommunityID: community, Reason: "spam links",
	})
	check("warn", err)
	step("warn recorded as %s", result.ActionID)

	banResult, err := executor.Execute(ctx, moderation.ActionRequest{
		Type: moderation.ActionBan, ActorID: "admin-1", TargetID: "user-7",
		CommunityID: community, Reason: "repeated spam",
	})
	check("ban", err)
	step("ban recorded as %s", banResult.ActionID)

	_, err = executor.Execute(ctx, moderation.ActionRequest{
		Type: moderation.ActionBan, ActorID: "user-8", TargetID: "user-7",
		CommunityID: community, Reason: "no authority",
	})
	if err == nil {
		check("unauthorized ban", fmt.Errorf("expected a denial"))
	}
	step("unauthorized ban denied: %v", err)

	// cross-community enforcement stays off until the community opts in
	_, err = executor.Execute(ctx, moderation.ActionRequest{
		Type: moderation.ActionCrossChatBan, ActorID: "mod-9", TargetID: "user-7",
		CommunityID: community, Reason: "network ban",
	})
	if err == nil {
		check("gated cross ban", fmt.Errorf("expected a denial before opt-in"))
	}
	step("cross-community ban blocked before opt-in: %v", err)

	_, err = gate.SetEnabled(ctx, community, moderation.FeatureCrossChat, true, "admin-1", nil)
	check("enable feature", err)
	crossResult, err := executor.Execute(ctx, moderation.ActionRequest{
		Type: moderation.ActionCrossChatBan, ActorID: "mod-9", TargetID: "user-7",
		CommunityID: community, Reason: "network ban",
	})
	check("cross ban after opt-in", err)
	step("cross-community ban recorded as %s", crossResult.ActionID)

	recs, err := audit.Query(ctx, community, moderation.ActionFilter{TargetID: "user-7"})
	check("query trail", err)
	step("audit trail holds %d records for user-7", len(recs))

	ap, err := appeals.File(ctx, banResult.ActionID, "user-7", "I was framed")
	check("file appeal", err)
	step("appeal %s filed (%s)", ap.AppealID, ap.Status)

	resolved, err := appeals.UpdateStatus(ctx, ap.AppealID, moderation.AppealApproved, "admin-1", "evidence reviewed")
	check("approve appeal", err)
	step("appeal %s -> %s, unban issued", resolved.AppealID, resolved.Status)

	step("platform calls: %v", gateway.calls)
	fmt.Println("smoke run passed")
}

func step(format string, args ...any) {
	fmt.Printf("  "+format+"\n", args...)
}

func check(stage string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "smoke failed at %s: %v\n", stage, err)
		os.Exit(1)
	}
}
