package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/snailscoop/modauthority/internal/credential"
	"github.com/snailscoop/modauthority/internal/ids"
	"github.com/snailscoop/modauthority/internal/obs"
	"github.com/snailscoop/modauthority/internal/platform"
)

// Fixed levels granted by the non-credential trust sources.
var (
	platformAdminRole = Roles[RoleGroupAdmin]
	stakeProofRole    = Roles[RoleCrossChatMod]
)

const (
	adminStatusTTL = 5 * time.Minute
	stakeProofTTL  = 10 * time.Minute
	trustCacheSize = 8192
)

// StakeVerifier proves that a user holds a qualifying stake or token.
// A positive proof is only trusted for a bounded freshness window.
type StakeVerifier interface {
	HoldsQualifyingStake(ctx context.Context, userID string) (bool, error)
}

// FeatureChecker answers community opt-in questions for the resolver.
type FeatureChecker interface {
	IsEnabled(ctx context.Context, communityID string, f Feature) (bool, error)
}

// Resolver combines the ordered trust sources into one authority
// decision: platform admin status, stake proof, cached credential,
// freshly fetched issuer credential. First source with sufficient level
// wins; later sources are not consulted.
type Resolver struct {
	platform platform.Client
	issuer   credential.Issuer
	cache    AssignmentCache
	features FeatureChecker
	stake    StakeVerifier

	// local trust caches; positives only, bounded freshness
	admins *expirable.LRU[string, bool]
	stakes *expirable.LRU[string, bool]

	now func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithStakeVerifier enables the stake-proof trust source.
func WithStakeVerifier(v StakeVerifier) ResolverOption {
	return func(r *Resolver) { r.stake = v }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver wires the resolver. issuer may be nil when no credential
// issuer is configured; the corresponding strategy is then skipped.
func NewResolver(pc platform.Client, issuer credential.Issuer, cache AssignmentCache, features FeatureChecker, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		platform: pc,
		issuer:   issuer,
		cache:    cache,
		features: features,
		admins:   expirable.NewLRU[string, bool](trustCacheSize, nil, adminStatusTTL),
		stakes:   expirable.NewLRU[string, bool](trustCacheSize, nil, stakeProofTTL),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the verified authority of actor for the given action
// in the community. ActionAll short-circuits permission gating and
// reports the highest authority found across all sources. External
// lookup failures in one source are logged and skipped, never fatal.
func (r *Resolver) Resolve(ctx context.Context, actorID string, action ActionType, communityID string) (Resolution, error) {
	if actorID == "" || communityID == "" {
		return Resolution{}, fmt.Errorf("%w: actor and community are required", ErrValidation)
	}

	if action == ActionAll {
		res := r.resolveHighest(ctx, actorID, communityID)
		obs.ObserveResolution(res.Method, res.Verified)
		return res, nil
	}

	perm, err := PermissionFor(action)
	if err != nil {
		return Resolution{}, err
	}

	best := Resolution{Message: fmt.Sprintf("no moderation authority found for %s", actorID)}
	for _, strategy := range r.strategies() {
		res, ok := strategy(ctx, actorID, communityID)
		if !ok {
			continue
		}
		if res.Level >= perm.MinLevel {
			if denied := r.checkOptIn(ctx, communityID, perm, res); denied != nil {
				obs.ObserveResolution(res.Method, false)
				return *denied, nil
			}
			res.Verified = true
			res.Message = fmt.Sprintf("authorized as %s (level %d) via %s", res.Role, res.Level, res.Method)
			obs.ObserveResolution(res.Method, true)
			return res, nil
		}
		if res.Level > best.Level {
			best = res
			best.Message = fmt.Sprintf("%s grants level %d, %s requires level %d", res.Method, res.Level, action, perm.MinLevel)
		}
	}

	best.Verified = false
	obs.ObserveResolution(best.Method, false)
	return best, nil
}

// Invalidate deactivates the assignment backed by credentialRef and
// drops the cache entry. Called when a credential is revoked; the
// resolver owns assignment writes, so revocation lands here.
func (r *Resolver) Invalidate(ctx context.Context, userID, communityID, credentialRef string) error {
	if credentialRef == "" {
		return fmt.Errorf("%w: credential reference is required", ErrValidation)
	}
	return r.cache.Invalidate(ctx, userID, communityID, credentialRef)
}

// resolveHighest consults every source and keeps the strongest result.
func (r *Resolver) resolveHighest(ctx context.Context, actorID, communityID string) Resolution {
	best := Resolution{Message: fmt.Sprintf("no moderation authority found for %s", actorID)}
	for _, strategy := range r.strategies() {
		res, ok := strategy(ctx, actorID, communityID)
		if ok && res.Level > best.Level {
			best = res
		}
	}
	if best.Level > 0 {
		best.Verified = true
		best.Message = fmt.Sprintf("highest authority: %s (level %d) via %s", best.Role, best.Level, best.Method)
	}
	return best
}

type strategyFunc func(ctx context.Context, actorID, communityID string) (Resolution, bool)

// strategies returns the trust sources in their fixed order. The order
// is the monotonicity guarantee: an earlier source that matches can
// never be outranked by a later one for the same request.
func (r *Resolver) strategies() []strategyFunc {
	return []strategyFunc{
		r.resolvePlatformAdmin,
		r.resolveStakeProof,
		r.resolveCachedCredential,
		r.resolveIssuerCredential,
	}
}

func (r *Resolver) resolvePlatformAdmin(ctx context.Context, actorID, communityID string) (Resolution, bool) {
	key := communityID + "/" + actorID
	admin, cached := r.admins.Get(key)
	if !cached {
		var err error
		admin, err = r.platform.AdminStatus(ctx, communityID, actorID)
		if err != nil {
			obs.LogEvent("resolver_admin_check_failed", map[string]any{
				"actor": actorID, "community": communityID, "error": err.Error(),
			})
			return Resolution{}, false
		}
		if admin {
			r.admins.Add(key, true)
		}
	}
	if !admin {
		return Resolution{}, false
	}
	return Resolution{
		Level:  platformAdminRole.Level,
		Role:   platformAdminRole.Name,
		Method: MethodPlatformAdmin,
	}, true
}

func (r *Resolver) resolveStakeProof(ctx context.Context, actorID, communityID string) (Resolution, bool) {
	if r.stake == nil {
		return Resolution{}, false
	}
	holds, cached := r.stakes.Get(actorID)
	if !cached {
		var err error
		holds, err = r.stake.HoldsQualifyingStake(ctx, actorID)
		if err != nil {
			obs.LogEvent("resolver_stake_check_failed", map[string]any{
				"actor": actorID, "error": err.Error(),
			})
			return Resolution{}, false
		}
		if holds {
			// only positives are cached; negatives are re-verified on
			// every resolve so a fresh stake takes effect immediately
			r.stakes.Add(actorID, true)
		}
	}
	if !holds {
		return Resolution{}, false
	}
	return Resolution{
		Level:  stakeProofRole.Level,
		Role:   stakeProofRole.Name,
		Method: MethodStakeProof,
	}, true
}

func (r *Resolver) resolveCachedCredential(ctx context.Context, actorID, communityID string) (Resolution, bool) {
	a, err := r.cache.Get(ctx, actorID, communityID)
	if err != nil {
		obs.LogEvent("resolver_cache_lookup_failed", map[string]any{
			"actor": actorID, "community": communityID, "error": err.Error(),
		})
		return Resolution{}, false
	}
	if a == nil || !a.Valid(r.now()) {
		return Resolution{}, false
	}
	role, ok := LookupRole(a.Role)
	if !ok {
		obs.LogEvent("resolver_unknown_cached_role", map[string]any{
			"actor": actorID, "community": communityID, "role": string(a.Role),
		})
		return Resolution{}, false
	}
	return Resolution{
		Level:  role.Level,
		Role:   role.Name,
		Method: MethodCachedCred,
	}, true
}

// resolveIssuerCredential fetches fresh credentials from the issuer and
// writes the strongest usable one back into the cache. This is the only
// strategy that populates the cache.
func (r *Resolver) resolveIssuerCredential(ctx context.Context, actorID, communityID string) (Resolution, bool) {
	if r.issuer == nil {
		return Resolution{}, false
	}
	did, err := r.issuer.DIDFor(ctx, actorID)
	if err != nil {
		obs.LogEvent("resolver_did_lookup_failed", map[string]any{
			"actor": actorID, "error": err.Error(),
		})
		return Resolution{}, false
	}
	creds, err := r.issuer.CredentialsByHolder(ctx, did)
	if err != nil {
		obs.LogEvent("resolver_issuer_fetch_failed", map[string]any{
			"actor": actorID, "error": err.Error(),
		})
		return Resolution{}, false
	}

	now := r.now()
	var bestRole Role
	var bestCred credential.Credential
	found := false
	for _, c := range creds {
		if c.Type != credential.TypeModeration || !c.Usable(now) || !c.CoversCommunity(communityID) {
			continue
		}
		role, ok := LookupRole(RoleName(c.Role))
		if !ok {
			// A role name outside the catalog never grants authority.
			// Flagged instead of silently downgraded to a default role.
			obs.LogEvent("resolver_unknown_credential_role", map[string]any{
				"actor": actorID, "credential": c.ID, "role": c.Role,
			})
			continue
		}
		if !found || role.Level > bestRole.Level {
			bestRole = role
			bestCred = c
			found = true
		}
	}
	if !found {
		return Resolution{}, false
	}

	validFrom := bestCred.IssuedAt
	if validFrom.IsZero() {
		validFrom = now
	}
	assignment := Assignment{
		ID:            ids.NewAssignment(),
		UserID:        actorID,
		CommunityID:   communityID,
		Role:          bestRole.Name,
		AssignedBy:    did,
		CredentialRef: bestCred.ID,
		ValidFrom:     validFrom,
		ValidUntil:    bestCred.ExpiresAt,
		Active:        true,
		CreatedAt:     now,
	}
	if err := r.cache.Put(ctx, assignment); err != nil {
		// cache population is a side effect; the fresh credential still
		// grants authority for this request
		obs.LogEvent("resolver_cache_writeback_failed", map[string]any{
			"actor": actorID, "community": communityID, "error": err.Error(),
		})
	}

	return Resolution{
		Level:  bestRole.Level,
		Role:   bestRole.Name,
		Method: MethodIssuerCred,
	}, true
}

// checkOptIn applies the scope/opt-in gate after the level comparison.
// Returns a denial resolution when the community has not opted in.
func (r *Resolver) checkOptIn(ctx context.Context, communityID string, perm ActionPermission, res Resolution) *Resolution {
	if perm.RequiresOptIn == "" {
		return nil
	}
	enabled, err := r.features.IsEnabled(ctx, communityID, perm.RequiresOptIn)
	if err != nil {
		obs.LogEvent("resolver_feature_check_failed", map[string]any{
			"community": communityID, "feature": string(perm.RequiresOptIn), "error": err.Error(),
		})
	}
	if err != nil || !enabled {
		return &Resolution{
			Verified: false,
			Level:    res.Level,
			Role:     res.Role,
			Method:   res.Method,
			Message:  fmt.Sprintf("community has not enabled %s", perm.RequiresOptIn),
		}
	}
	return nil
}
