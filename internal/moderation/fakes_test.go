package moderation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/snailscoop/modauthority/internal/credential"
	"github.com/snailscoop/modauthority/internal/platform"
)

// fakePlatform records calls and answers admin checks from a fixed map.
type fakePlatform struct {
	mu     sync.Mutex
	admins map[string]bool
	calls  []string

	adminErr    error
	sendErr     error
	banErr      error
	unbanErr    error
	restrictErr error
}

func newFakePlatform(admins ...string) *fakePlatform {
	m := make(map[string]bool, len(admins))
	for _, id := range admins {
		m[id] = true
	}
	return &fakePlatform{admins: m}
}

func (f *fakePlatform) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakePlatform) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakePlatform) AdminStatus(ctx context.Context, communityID, userID string) (bool, error) {
	if f.adminErr != nil {
		return false, f.adminErr
	}
	f.record("admin_status:" + userID)
	return f.admins[userID], nil
}

func (f *fakePlatform) SendMessage(ctx context.Context, recipientID, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.record("send:" + recipientID)
	return nil
}

func (f *fakePlatform) RestrictMember(ctx context.Context, communityID, userID string, r platform.Restrictions, until time.Time) error {
	if f.restrictErr != nil {
		return f.restrictErr
	}
	f.record("restrict:" + userID)
	return nil
}

func (f *fakePlatform) BanMember(ctx context.Context, communityID, userID string, until *time.Time) error {
	if f.banErr != nil {
		return f.banErr
	}
	f.record("ban:" + userID)
	return nil
}

func (f *fakePlatform) UnbanMember(ctx context.Context, communityID, userID string) error {
	if f.unbanErr != nil {
		return f.unbanErr
	}
	f.record("unban:" + userID)
	return nil
}

func (f *fakePlatform) DeleteMessage(ctx context.Context, communityID, messageID string) error {
	f.record("delete:" + messageID)
	return nil
}

func (f *fakePlatform) PinMessage(ctx context.Context, communityID, messageID string, silent bool) error {
	f.record("pin:" + messageID)
	return nil
}

// fakeIssuer serves canned credentials per holder DID.
type fakeIssuer struct {
	mu      sync.Mutex
	dids    map[string]string // userID -> DID
	creds   map[string][]credential.Credential
	revoked []string

	fetchErr error
}

func (f *fakeIssuer) CredentialsByHolder(ctx context.Context, did string) ([]credential.Credential, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.creds[did], nil
}

func (f *fakeIssuer) Issue(ctx context.Context, issuerDID, holderDID, credType string, data map[string]any) (credential.Credential, error) {
	return credential.Credential{
		ID:        "cred-issued",
		Type:      credType,
		HolderDID: holderDID,
		Status:    credential.StatusActive,
		Data:      data,
	}, nil
}

func (f *fakeIssuer) Revoke(ctx context.Context, credentialID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, credentialID)
	return nil
}

func (f *fakeIssuer) DIDFor(ctx context.Context, userID string) (string, error) {
	did, ok := f.dids[userID]
	if !ok {
		return "", errors.New("no did for " + userID)
	}
	return did, nil
}

type fakeStake struct {
	holders map[string]bool
	err     error
}

func (f fakeStake) HoldsQualifyingStake(ctx context.Context, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.holders[userID], nil
}

// testCache is an AssignmentCache with no memory layer; it delegates to
// the store so tests see every read and write.
type testCache struct {
	store AssignmentStore
}

func (c *testCache) Get(ctx context.Context, userID, communityID string) (*Assignment, error) {
	return c.store.Active(ctx, userID, communityID, time.Now())
}

func (c *testCache) Put(ctx context.Context, a Assignment) error {
	return c.store.Upsert(ctx, a)
}

func (c *testCache) Invalidate(ctx context.Context, userID, communityID, credentialRef string) error {
	return c.store.DeactivateByCredential(ctx, credentialRef)
}

// failingActions wraps an ActionStore and fails every append.
type failingActions struct {
	ActionStore
}

func (failingActions) Append(ctx context.Context, rec ActionRecord) error {
	return errors.New("disk full")
}

// fixture wires a full in-memory moderation stack for tests.
type fixture struct {
	store    *MemStore
	platform *fakePlatform
	issuer   *fakeIssuer
	cache    *testCache
	gate     *FeatureGate
	resolver *Resolver
	audit    *AuditTrail
	executor *Executor
	appeals  *AppealWorkflow
}

func newFixture(opts ...ResolverOption) *fixture {
	f := &fixture{
		store:    NewMemStore(),
		platform: newFakePlatform("admin-1"),
		issuer:   &fakeIssuer{dids: map[string]string{}, creds: map[string][]credential.Credential{}},
	}
	f.cache = &testCache{store: f.store.Assignments()}
	f.gate = NewFeatureGate(f.store.Flags())
	f.resolver = NewResolver(f.platform, f.issuer, f.cache, f.gate, opts...)
	f.gate.BindAuthority(f.resolver)
	f.audit = NewAuditTrail(f.store.Actions(), nil, nil)
	f.executor = NewExecutor(f.resolver, f.platform, f.audit, f.cache,
		WithIssuer(f.issuer, "did:cheqd:issuer"))
	f.appeals = NewAppealWorkflow(f.store.Appeals(), f.audit, f.resolver, f.platform, nil)
	return f
}

func (f *fixture) grantAssignment(userID, communityID string, role RoleName, credRef string) {
	_ = f.store.Assignments().Upsert(context.Background(), Assignment{
		ID:            "asg_test_" + userID,
		UserID:        userID,
		CommunityID:   communityID,
		Role:          role,
		CredentialRef: credRef,
		ValidFrom:     time.Now().Add(-time.Hour),
		Active:        true,
		CreatedAt:     time.Now(),
	})
}
