package moderation

import "fmt"

// ActionType identifies a supported moderation action.
type ActionType string

const (
	ActionWarn            ActionType = "warn"
	ActionMute            ActionType = "mute"
	ActionDelete          ActionType = "delete"
	ActionKick            ActionType = "kick"
	ActionBan             ActionType = "ban"
	ActionPin             ActionType = "pin"
	ActionAnnounce        ActionType = "announce"
	ActionAddModerator    ActionType = "add_moderator"
	ActionRemoveModerator ActionType = "remove_moderator"
	ActionCrossChatBan    ActionType = "cross_chat_ban"
	ActionCrossChatWarn   ActionType = "cross_chat_warn"
	ActionRevokeCred      ActionType = "revoke_credential"
	ActionManageRegistry  ActionType = "manage_registry"
	ActionToggleFeatures  ActionType = "toggle_features"

	// ActionAll asks the resolver for the highest authority found across
	// all trust sources instead of gating on a specific action.
	ActionAll ActionType = "all"
)

// Feature is a community-level opt-in toggle.
type Feature string

const (
	FeatureCrossChat        Feature = "cross_chat_moderation"
	FeaturePlatformMod      Feature = "platform_moderation"
	FeatureTrustNetwork     Feature = "trust_network"
	FeatureEducationalCreds Feature = "educational_credentials"
	FeatureBlockchainVerify Feature = "blockchain_verification"
)

// Features is the closed feature enumeration. Unknown identifiers are a
// validation error, never silently ignored.
var Features = map[Feature]struct{}{
	FeatureCrossChat:        {},
	FeaturePlatformMod:      {},
	FeatureTrustNetwork:     {},
	FeatureEducationalCreds: {},
	FeatureBlockchainVerify: {},
}

// ValidFeature reports whether f is part of the closed enumeration.
func ValidFeature(f Feature) bool {
	_, ok := Features[f]
	return ok
}

// ActionPermission declares what an action requires: the minimum role
// level, the scope it applies in, and an optional feature the community
// must have opted into.
type ActionPermission struct {
	MinLevel      int
	Scope         Scope
	RequiresOptIn Feature // empty when no opt-in is needed
}

// ActionPermissions is the closed permission table, one entry per
// supported action type.
var ActionPermissions = map[ActionType]ActionPermission{
	ActionWarn:            {MinLevel: 1, Scope: ScopeGroup},
	ActionMute:            {MinLevel: 1, Scope: ScopeGroup},
	ActionDelete:          {MinLevel: 1, Scope: ScopeGroup},
	ActionKick:            {MinLevel: 2, Scope: ScopeGroup},
	ActionBan:             {MinLevel: 2, Scope: ScopeGroup},
	ActionPin:             {MinLevel: 2, Scope: ScopeGroup},
	ActionAnnounce:        {MinLevel: 2, Scope: ScopeGroup},
	ActionAddModerator:    {MinLevel: 2, Scope: ScopeGroup},
	ActionRemoveModerator: {MinLevel: 2, Scope: ScopeGroup},
	ActionCrossChatBan:    {MinLevel: 3, Scope: ScopeMultiGroup, RequiresOptIn: FeatureCrossChat},
	ActionCrossChatWarn:   {MinLevel: 3, Scope: ScopeMultiGroup, RequiresOptIn: FeatureCrossChat},
	ActionRevokeCred:      {MinLevel: 4, Scope: ScopePlatform},
	ActionManageRegistry:  {MinLevel: 5, Scope: ScopePlatform},
	ActionToggleFeatures:  {MinLevel: 2, Scope: ScopeGroup},
}

// PermissionFor returns the permission entry for an action type, or a
// validation error for unknown types.
func PermissionFor(action ActionType) (ActionPermission, error) {
	p, ok := ActionPermissions[action]
	if !ok {
		return ActionPermission{}, fmt.Errorf("%w: unknown action type %q", ErrValidation, action)
	}
	return p, nil
}
