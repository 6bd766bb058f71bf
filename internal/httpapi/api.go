// Package httpapi exposes the moderation subsystem to the command layer
// over HTTP. It owns request decoding, authn of the calling service and
// the mapping from the moderation error taxonomy to status codes; all
// decisions happen in internal/moderation.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/snailscoop/modauthority/internal/moderation"
	"github.com/snailscoop/modauthority/internal/obs"
	"github.com/snailscoop/modauthority/internal/platform"
)

const serviceName = "modauthority-api"

// ReadyProbe checks the backing store before reporting ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	resolver  moderation.AuthorityResolver
	executor  *moderation.Executor
	audit     *moderation.AuditTrail
	gate      *moderation.FeatureGate
	appeals   *moderation.AppealWorkflow
	directory *platform.Directory

	tokens *tokenVerifier

	rateBurst  int
	ratePerSec int
}

// Config carries the wired moderation services into the API.
type Config struct {
	ReadyProbe ReadyProbe
	Version    string

	Resolver  moderation.AuthorityResolver
	Executor  *moderation.Executor
	Audit     *moderation.AuditTrail
	Gate      *moderation.FeatureGate
	Appeals   *moderation.AppealWorkflow
	Directory *platform.Directory

	// AuthSecret enables bearer-token authn when non-empty.
	AuthSecret string
}

// New builds the API and registers routes.
func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		resolver:   cfg.Resolver,
		executor:   cfg.Executor,
		audit:      cfg.Audit,
		gate:       cfg.Gate,
		appeals:    cfg.Appeals,
		directory:  cfg.Directory,
		tokens:     newTokenVerifier(cfg.AuthSecret),
		rateBurst:  30,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.HandleFunc("GET /readyz", a.ready)
	a.mux.HandleFunc("GET /v1/info", a.info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/authority/resolve", a.resolveAuthority)
	a.mux.HandleFunc("POST /v1/actions", a.executeAction)
	a.mux.HandleFunc("GET /v1/actions", a.queryActions)
	a.mux.HandleFunc("POST /v1/appeals", a.fileAppeal)
	a.mux.HandleFunc("GET /v1/appeals/{id}", a.getAppeal)
	a.mux.HandleFunc("POST /v1/appeals/{id}/status", a.updateAppealStatus)
	a.mux.HandleFunc("PUT /v1/features/{feature}", a.setFeature)
	a.mux.HandleFunc("GET /v1/features", a.getFeatures)

	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
