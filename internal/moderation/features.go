package moderation

import (
	"context"
	"fmt"
	"time"
)

// FeatureGate stores and answers community opt-ins for the closed
// feature set. Toggling is itself an authority-checked operation.
type FeatureGate struct {
	flags     FlagStore
	authority AuthorityResolver
	now       func() time.Time
}

var _ FeatureChecker = (*FeatureGate)(nil)

// NewFeatureGate builds the gate. The authority resolver is bound
// afterwards via BindAuthority because resolver and gate reference each
// other (the resolver consults the gate for opt-in checks).
func NewFeatureGate(flags FlagStore) *FeatureGate {
	return &FeatureGate{flags: flags, now: time.Now}
}

// BindAuthority attaches the resolver used to authorize SetEnabled.
func (g *FeatureGate) BindAuthority(a AuthorityResolver) { g.authority = a }

// IsEnabled reports whether the community has opted into the feature.
// Features default to disabled until explicitly toggled.
func (g *FeatureGate) IsEnabled(ctx context.Context, communityID string, f Feature) (bool, error) {
	if communityID == "" {
		return false, fmt.Errorf("%w: community is required", ErrValidation)
	}
	if !ValidFeature(f) {
		return false, fmt.Errorf("%w: unknown feature %q", ErrValidation, f)
	}
	flag, err := g.flags.Get(ctx, communityID, f)
	if err != nil {
		return false, fmt.Errorf("%w: load feature flag: %v", ErrStorage, err)
	}
	return flag != nil && flag.Enabled, nil
}

// SetEnabled toggles a feature for a community. The actor must hold
// toggle_features authority in that community; the gate never bypasses
// the resolver.
func (g *FeatureGate) SetEnabled(ctx context.Context, communityID string, f Feature, enabled bool, actorID string, settings map[string]any) (FeatureFlag, error) {
	if communityID == "" || actorID == "" {
		return FeatureFlag{}, fmt.Errorf("%w: community and actor are required", ErrValidation)
	}
	if !ValidFeature(f) {
		return FeatureFlag{}, fmt.Errorf("%w: unknown feature %q", ErrValidation, f)
	}

	res, err := g.authority.Resolve(ctx, actorID, ActionToggleFeatures, communityID)
	if err != nil {
		return FeatureFlag{}, err
	}
	if !res.Verified {
		return FeatureFlag{}, fmt.Errorf("%w: %s", ErrPermissionDenied, res.Message)
	}

	flag := FeatureFlag{
		CommunityID: communityID,
		Feature:     f,
		Enabled:     enabled,
		EnabledBy:   actorID,
		EnabledAt:   g.now().UTC(),
		Settings:    settings,
	}
	if err := g.flags.Upsert(ctx, flag); err != nil {
		return FeatureFlag{}, fmt.Errorf("%w: store feature flag: %v", ErrStorage, err)
	}
	return flag, nil
}

// All returns the full feature map for a community, including features
// that were never toggled (reported as disabled).
func (g *FeatureGate) All(ctx context.Context, communityID string) (map[Feature]FeatureFlag, error) {
	if communityID == "" {
		return nil, fmt.Errorf("%w: community is required", ErrValidation)
	}
	stored, err := g.flags.All(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("%w: list feature flags: %v", ErrStorage, err)
	}
	out := make(map[Feature]FeatureFlag, len(Features))
	for f := range Features {
		out[f] = FeatureFlag{CommunityID: communityID, Feature: f}
	}
	for _, flag := range stored {
		out[flag.Feature] = flag
	}
	return out, nil
}
