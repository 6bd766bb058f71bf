package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/snailscoop/modauthority/internal/moderation"
	"github.com/snailscoop/modauthority/internal/platform"
)

// decode reads the JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// a single JSON value per request
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected trailing data")
	}
	return nil
}

// errorStatus maps the moderation error taxonomy onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, moderation.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, moderation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, moderation.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, moderation.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, moderation.ErrStorage):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func respondDomainError(w http.ResponseWriter, err error) {
	respondError(w, errorStatus(err), err.Error())
}

type resolveRequest struct {
	UserID      string `json:"user_id"`
	Action      string `json:"action"`
	CommunityID string `json:"community_id"`
}

type resolveResponse struct {
	Verified bool   `json:"verified"`
	Level    int    `json:"level"`
	Role     string `json:"role,omitempty"`
	Method   string `json:"method,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (a *API) resolveAuthority(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Action == "" || req.CommunityID == "" {
		respondError(w, http.StatusUnprocessableEntity, "user_id, action and community_id are required")
		return
	}

	res, err := a.resolver.Resolve(r.Context(), req.UserID, moderation.ActionType(req.Action), req.CommunityID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Verified: res.Verified,
		Level:    res.Level,
		Role:     string(res.Role),
		Method:   res.Method,
		Message:  res.Message,
	})
}

type actionRequest struct {
	Type        string `json:"type"`
	ActorID     string `json:"actor_id"`
	Target      string `json:"target"`
	CommunityID string `json:"community_id"`
	Reason      string `json:"reason,omitempty"`
	DurationSec int64  `json:"duration_seconds,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
}

type actionResponse struct {
	Success  bool   `json:"success"`
	Applied  bool   `json:"applied"`
	Message  string `json:"message,omitempty"`
	ActionID string `json:"action_id,omitempty"`
}

func (a *API) executeAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" || req.ActorID == "" || req.CommunityID == "" {
		respondError(w, http.StatusUnprocessableEntity, "type, actor_id and community_id are required")
		return
	}

	targetID := req.Target
	if targetID != "" && a.directory != nil {
		u, err := a.directory.Lookup(r.Context(), targetID)
		if errors.Is(err, platform.ErrUserNotFound) {
			respondError(w, http.StatusUnprocessableEntity, "unknown target "+req.Target)
			return
		}
		if err != nil {
			respondError(w, http.StatusBadGateway, "target lookup failed")
			return
		}
		targetID = u.ID
	}

	result, err := a.executor.Execute(r.Context(), moderation.ActionRequest{
		Type:        moderation.ActionType(req.Type),
		ActorID:     req.ActorID,
		TargetID:    targetID,
		CommunityID: req.CommunityID,
		Reason:      req.Reason,
		Duration:    time.Duration(req.DurationSec) * time.Second,
		MessageID:   req.MessageID,
	})
	resp := actionResponse{
		Success:  result.Success,
		Applied:  result.Applied,
		Message:  result.Message,
		ActionID: result.ActionID,
	}
	if err != nil {
		// the side effect may have landed even though the call failed;
		// return the result body alongside the error status so callers
		// can tell "denied" from "applied but not recorded"
		writeJSON(w, errorStatus(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type actionRecordResponse struct {
	ActionID    string         `json:"action_id"`
	Type        string         `json:"type"`
	ActorID     string         `json:"actor_id"`
	TargetID    string         `json:"target_id,omitempty"`
	CommunityID string         `json:"community_id"`
	Reason      string         `json:"reason,omitempty"`
	DurationSec int64          `json:"duration_seconds,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toActionRecordResponse(rec moderation.ActionRecord) actionRecordResponse {
	return actionRecordResponse{
		ActionID:    rec.ActionID,
		Type:        string(rec.ActionType),
		ActorID:     rec.ActorID,
		TargetID:    rec.TargetID,
		CommunityID: rec.CommunityID,
		Reason:      rec.Reason,
		DurationSec: int64(rec.Duration / time.Second),
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt,
	}
}

func (a *API) queryActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	communityID := q.Get("community_id")
	if communityID == "" {
		respondError(w, http.StatusUnprocessableEntity, "community_id is required")
		return
	}

	f := moderation.ActionFilter{
		ActorID:    q.Get("actor_id"),
		TargetID:   q.Get("target_id"),
		ActionType: moderation.ActionType(q.Get("type")),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "since must be RFC 3339")
			return
		}
		f.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "until must be RFC 3339")
			return
		}
		f.Until = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusUnprocessableEntity, "offset must be a non-negative integer")
			return
		}
		f.Offset = n
	}

	recs, err := a.audit.Query(r.Context(), communityID, f)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	out := make([]actionRecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toActionRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": out})
}

type appealRequest struct {
	ActionID   string `json:"action_id"`
	AppealerID string `json:"appealer_id"`
	Reason     string `json:"reason,omitempty"`
}

type appealResponse struct {
	AppealID         string     `json:"appeal_id"`
	ActionID         string     `json:"action_id"`
	AppealerID       string     `json:"appealer_id"`
	Reason           string     `json:"reason,omitempty"`
	Status           string     `json:"status"`
	ResolverID       string     `json:"resolver_id,omitempty"`
	ResolutionReason string     `json:"resolution_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

func toAppealResponse(ap moderation.Appeal) appealResponse {
	return appealResponse{
		AppealID:         ap.AppealID,
		ActionID:         ap.ActionID,
		AppealerID:       ap.AppealerID,
		Reason:           ap.Reason,
		Status:           string(ap.Status),
		ResolverID:       ap.ResolverID,
		ResolutionReason: ap.ResolutionReason,
		CreatedAt:        ap.CreatedAt,
		ResolvedAt:       ap.ResolvedAt,
	}
}

func (a *API) fileAppeal(w http.ResponseWriter, r *http.Request) {
	var req appealRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActionID == "" || req.AppealerID == "" {
		respondError(w, http.StatusUnprocessableEntity, "action_id and appealer_id are required")
		return
	}

	ap, err := a.appeals.File(r.Context(), req.ActionID, req.AppealerID, req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppealResponse(ap))
}

func (a *API) getAppeal(w http.ResponseWriter, r *http.Request) {
	ap, err := a.appeals.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppealResponse(*ap))
}

type appealStatusRequest struct {
	Status     string `json:"status"`
	ResolverID string `json:"resolver_id"`
	Reason     string `json:"reason,omitempty"`
}

func (a *API) updateAppealStatus(w http.ResponseWriter, r *http.Request) {
	var req appealStatusRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" || req.ResolverID == "" {
		respondError(w, http.StatusUnprocessableEntity, "status and resolver_id are required")
		return
	}

	ap, err := a.appeals.UpdateStatus(r.Context(), r.PathValue("id"),
		moderation.AppealStatus(req.Status), req.ResolverID, req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppealResponse(ap))
}

type featureRequest struct {
	CommunityID string         `json:"community_id"`
	Enabled     bool           `json:"enabled"`
	ActorID     string         `json:"actor_id"`
	Settings    map[string]any `json:"settings,omitempty"`
}

type featureResponse struct {
	CommunityID string         `json:"community_id"`
	Feature     string         `json:"feature"`
	Enabled     bool           `json:"enabled"`
	EnabledBy   string         `json:"enabled_by,omitempty"`
	EnabledAt   *time.Time     `json:"enabled_at,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
}

func toFeatureResponse(flag moderation.FeatureFlag) featureResponse {
	resp := featureResponse{
		CommunityID: flag.CommunityID,
		Feature:     string(flag.Feature),
		Enabled:     flag.Enabled,
		EnabledBy:   flag.EnabledBy,
		Settings:    flag.Settings,
	}
	if !flag.EnabledAt.IsZero() {
		t := flag.EnabledAt
		resp.EnabledAt = &t
	}
	return resp
}

func (a *API) setFeature(w http.ResponseWriter, r *http.Request) {
	var req featureRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CommunityID == "" || req.ActorID == "" {
		respondError(w, http.StatusUnprocessableEntity, "community_id and actor_id are required")
		return
	}

	flag, err := a.gate.SetEnabled(r.Context(), req.CommunityID,
		moderation.Feature(r.PathValue("feature")), req.Enabled, req.ActorID, req.Settings)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFeatureResponse(flag))
}

func (a *API) getFeatures(w http.ResponseWriter, r *http.Request) {
	communityID := r.URL.Query().Get("community_id")
	if communityID == "" {
		respondError(w, http.StatusUnprocessableEntity, "community_id is required")
		return
	}
	flags, err := a.gate.All(r.Context(), communityID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	out := make(map[string]featureResponse, len(flags))
	for f, flag := range flags {
		out[string(f)] = toFeatureResponse(flag)
	}
	writeJSON(w, http.StatusOK, map[string]any{"features": out})
}
