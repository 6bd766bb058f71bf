package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/snailscoop/modauthority/internal/moderation"
	"github.com/snailscoop/modauthority/internal/platform"
)

type stubPlatform struct {
	admins map[string]bool
}

func (s stubPlatform) AdminStatus(ctx context.Context, communityID, userID string) (bool, error) {
	return s.admins[userID], nil
}
func (s stubPlatform) SendMessage(ctx context.Context, recipientID, text string) error { return nil }
func (s stubPlatform) RestrictMember(ctx context.Context, communityID, userID string, r platform.Restrictions, until time.Time) error {
	return nil
}
func (s stubPlatform) BanMember(ctx context.Context, communityID, userID string, until *time.Time) error {
	return nil
}
func (s stubPlatform) UnbanMember(ctx context.Context, communityID, userID string) error { return nil }
func (s stubPlatform) DeleteMessage(ctx context.Context, communityID, messageID string) error {
	return nil
}
func (s stubPlatform) PinMessage(ctx context.Context, communityID, messageID string, silent bool) error {
	return nil
}

type storeCache struct {
	store moderation.AssignmentStore
}

func (c storeCache) Get(ctx context.Context, userID, communityID string) (*moderation.Assignment, error) {
	return c.store.Active(ctx, userID, communityID, time.Now())
}
func (c storeCache) Put(ctx context.Context, a moderation.Assignment) error {
	return c.store.Upsert(ctx, a)
}
func (c storeCache) Invalidate(ctx context.Context, userID, communityID, credentialRef string) error {
	return c.store.DeactivateByCredential(ctx, credentialRef)
}

func newTestServer(t *testing.T, authSecret string) *httptest.Server {
	t.Helper()
	store := moderation.NewMemStore()
	gateway := stubPlatform{admins: map[string]bool{"admin-1": true}}
	cache := storeCache{store: store.Assignments()}
	gate := moderation.NewFeatureGate(store.Flags())
	resolver := moderation.NewResolver(gateway, nil, cache, gate)
	gate.BindAuthority(resolver)
	audit := moderation.NewAuditTrail(store.Actions(), nil, nil)
	executor := moderation.NewExecutor(resolver, gateway, audit, cache)
	appeals := moderation.NewAppealWorkflow(store.Appeals(), audit, resolver, gateway, nil)

	api := New(Config{
		Version:    "test",
		Resolver:   resolver,
		Executor:   executor,
		Audit:      audit,
		Gate:       gate,
		Appeals:    appeals,
		Directory:  platform.NewDirectory(platform.IDStrategy{}),
		AuthSecret: authSecret,
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, "")

	var body map[string]any
	if code := getJSON(t, srv.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestResolveAuthorityEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	var res resolveResponse
	code := postJSON(t, srv.URL+"/v1/authority/resolve", resolveRequest{
		UserID: "admin-1", Action: "ban", CommunityID: "chat-1",
	}, &res)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !res.Verified || res.Method != moderation.MethodPlatformAdmin {
		t.Errorf("response = %+v", res)
	}

	code = postJSON(t, srv.URL+"/v1/authority/resolve", resolveRequest{
		UserID: "admin-1", Action: "frobnicate", CommunityID: "chat-1",
	}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("unknown action: status = %d", code)
	}
}

func TestExecuteActionEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	var res actionResponse
	code := postJSON(t, srv.URL+"/v1/actions", actionRequest{
		Type: "ban", ActorID: "admin-1", Target: "700",
		CommunityID: "chat-1", Reason: "spam",
	}, &res)
	if code != http.StatusOK {
		t.Fatalf("status = %d, body %+v", code, res)
	}
	if !res.Success || res.ActionID == "" {
		t.Fatalf("response = %+v", res)
	}

	// denial carries the result body and a 403
	code = postJSON(t, srv.URL+"/v1/actions", actionRequest{
		Type: "ban", ActorID: "user-9", Target: "700",
		CommunityID: "chat-1",
	}, &res)
	if code != http.StatusForbidden {
		t.Errorf("denied status = %d", code)
	}
	if res.Success || res.Applied {
		t.Errorf("denied response = %+v", res)
	}

	// unresolvable target reference
	code = postJSON(t, srv.URL+"/v1/actions", actionRequest{
		Type: "ban", ActorID: "admin-1", Target: "@ghost",
		CommunityID: "chat-1",
	}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("bad target status = %d", code)
	}
}

func TestQueryActionsEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	postJSON(t, srv.URL+"/v1/actions", actionRequest{
		Type: "warn", ActorID: "admin-1", Target: "700", CommunityID: "chat-1",
	}, nil)
	postJSON(t, srv.URL+"/v1/actions", actionRequest{
		Type: "ban", ActorID: "admin-1", Target: "700", CommunityID: "chat-1",
	}, nil)

	var body struct {
		Actions []actionRecordResponse `json:"actions"`
	}
	code := getJSON(t, srv.URL+"/v1/actions?community_id=chat-1&type=ban", &body)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Actions) != 1 || body.Actions[0].Type != "ban" {
		t.Errorf("actions = %+v", body.Actions)
	}

	if code := getJSON(t, srv.URL+"/v1/actions", nil); code != http.StatusUnprocessableEntity {
		t.Errorf("missing community: status = %d", code)
	}
	if code := getJSON(t, srv.URL+"/v1/actions?community_id=chat-1&since=yesterday", nil); code != http.StatusUnprocessableEntity {
		t.Errorf("bad since: status = %d", code)
	}
}

func TestAppealLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t, "")

	var action actionResponse
	postJSON(t, srv.URL+"/v1/actions", actionRequest{
		Type: "ban", ActorID: "admin-1", Target: "700", CommunityID: "chat-1",
	}, &action)

	var ap appealResponse
	code := postJSON(t, srv.URL+"/v1/appeals", appealRequest{
		ActionID: action.ActionID, AppealerID: "700", Reason: "unfair",
	}, &ap)
	if code != http.StatusCreated {
		t.Fatalf("file status = %d", code)
	}
	if ap.Status != "pending" {
		t.Fatalf("appeal = %+v", ap)
	}

	var got appealResponse
	if code := getJSON(t, srv.URL+"/v1/appeals/"+ap.AppealID, &got); code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}

	code = postJSON(t, srv.URL+"/v1/appeals/"+ap.AppealID+"/status", appealStatusRequest{
		Status: "approved", ResolverID: "admin-1", Reason: "mistake",
	}, &got)
	if code != http.StatusOK {
		t.Fatalf("update status = %d", code)
	}
	if got.Status != "approved" || got.ResolvedAt == nil {
		t.Errorf("appeal = %+v", got)
	}

	// approving again hits the absorbing terminal state
	code = postJSON(t, srv.URL+"/v1/appeals/"+ap.AppealID+"/status", appealStatusRequest{
		Status: "approved", ResolverID: "admin-1",
	}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("double approve status = %d", code)
	}

	if code := getJSON(t, srv.URL+"/v1/appeals/apl_missing", nil); code != http.StatusNotFound {
		t.Errorf("missing appeal status = %d", code)
	}
}

func TestFeatureEndpoints(t *testing.T) {
	srv := newTestServer(t, "")

	var flag featureResponse
	req := func(url string, body featureRequest, out *featureResponse) int {
		payload, _ := json.Marshal(body)
		httpReq, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		defer resp.Body.Close()
		if out != nil {
			_ = json.NewDecoder(resp.Body).Decode(out)
		}
		return resp.StatusCode
	}

	code := req(srv.URL+"/v1/features/cross_chat_moderation", featureRequest{
		CommunityID: "chat-1", Enabled: true, ActorID: "admin-1",
	}, &flag)
	if code != http.StatusOK {
		t.Fatalf("put status = %d", code)
	}
	if !flag.Enabled {
		t.Errorf("flag = %+v", flag)
	}

	code = req(srv.URL+"/v1/features/cross_chat_moderation", featureRequest{
		CommunityID: "chat-1", Enabled: true, ActorID: "user-9",
	}, nil)
	if code != http.StatusForbidden {
		t.Errorf("unauthorized toggle status = %d", code)
	}

	code = req(srv.URL+"/v1/features/hoverboards", featureRequest{
		CommunityID: "chat-1", Enabled: true, ActorID: "admin-1",
	}, nil)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("unknown feature status = %d", code)
	}

	var all struct {
		Features map[string]featureResponse `json:"features"`
	}
	if code := getJSON(t, srv.URL+"/v1/features?community_id=chat-1", &all); code != http.StatusOK {
		t.Fatalf("get features status = %d", code)
	}
	if !all.Features["cross_chat_moderation"].Enabled {
		t.Errorf("features = %+v", all.Features)
	}
	if len(all.Features) != len(moderation.Features) {
		t.Errorf("got %d features, want %d", len(all.Features), len(moderation.Features))
	}
}

func TestAuthnGuardsProtectedRoutes(t *testing.T) {
	srv := newTestServer(t, "test-secret")

	// public paths stay open
	if code := getJSON(t, srv.URL+"/healthz", nil); code != http.StatusOK {
		t.Errorf("healthz status = %d", code)
	}

	// protected path without a token
	code := postJSON(t, srv.URL+"/v1/authority/resolve", resolveRequest{
		UserID: "admin-1", Action: "ban", CommunityID: "chat-1",
	}, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", code)
	}

	// with a valid token
	token, err := IssueToken("test-secret", "bot-gateway", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	payload, _ := json.Marshal(resolveRequest{UserID: "admin-1", Action: "ban", CommunityID: "chat-1"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/authority/resolve", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authenticated request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated status = %d", resp.StatusCode)
	}

	// wrong secret
	bad, _ := IssueToken("other-secret", "bot-gateway", time.Minute)
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v1/authority/resolve", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+bad)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("bad token request: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", resp2.StatusCode)
	}
}

func TestRejectsMalformedJSON(t *testing.T) {
	srv := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/v1/actions", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
