package moderation

// RoleName identifies one of the closed set of moderation roles.
type RoleName string

const (
	RoleGroupModerator    RoleName = "group_moderator"
	RoleGroupAdmin        RoleName = "group_admin"
	RoleCrossChatMod      RoleName = "cross_chat_moderator"
	RolePlatformModerator RoleName = "platform_moderator"
	RolePlatformAdmin     RoleName = "platform_admin"
)

// Scope bounds where a role or action applies.
type Scope string

const (
	ScopeGroup      Scope = "group"
	ScopeMultiGroup Scope = "multi-group"
	ScopePlatform   Scope = "platform"
)

// Permission tags granted by roles. Tags gate workflows that are not
// dispatchable actions themselves (appeal management, registry writes).
const (
	TagModerateMessages = "moderate.messages"
	TagModerateMembers  = "moderate.members"
	TagManageModerators = "manage.moderators"
	TagManageAppeals    = "manage.appeals"
	TagManageFeatures   = "manage.features"
	TagManageRegistry   = "manage.registry"
	TagRevokeCredential = "manage.credentials"
)

// Role is an immutable role definition. Levels are strictly increasing
// authority; comparisons always go through Level, never the name.
type Role struct {
	Name  RoleName
	Level int
	Scope Scope
	Tags  []string
}

// Roles is the closed role catalog. It is not user-extensible; a role
// name outside this table never grants authority.
var Roles = map[RoleName]Role{
	RoleGroupModerator: {
		Name:  RoleGroupModerator,
		Level: 1,
		Scope: ScopeGroup,
		Tags:  []string{TagModerateMessages},
	},
	RoleGroupAdmin: {
		Name:  RoleGroupAdmin,
		Level: 2,
		Scope: ScopeGroup,
		Tags: []string{
			TagModerateMessages, TagModerateMembers,
			TagManageModerators, TagManageAppeals, TagManageFeatures,
		},
	},
	RoleCrossChatMod: {
		Name:  RoleCrossChatMod,
		Level: 3,
		Scope: ScopeMultiGroup,
		Tags: []string{
			TagModerateMessages, TagModerateMembers, TagManageAppeals,
		},
	},
	RolePlatformModerator: {
		Name:  RolePlatformModerator,
		Level: 4,
		Scope: ScopePlatform,
		Tags: []string{
			TagModerateMessages, TagModerateMembers, TagManageModerators,
			TagManageAppeals, TagManageFeatures, TagRevokeCredential,
		},
	},
	RolePlatformAdmin: {
		Name:  RolePlatformAdmin,
		Level: 5,
		Scope: ScopePlatform,
		Tags: []string{
			TagModerateMessages, TagModerateMembers, TagManageModerators,
			TagManageAppeals, TagManageFeatures, TagRevokeCredential,
			TagManageRegistry,
		},
	},
}

// LookupRole returns the role definition for name.
func LookupRole(name RoleName) (Role, bool) {
	r, ok := Roles[name]
	return r, ok
}

// HasTag reports whether the role grants the permission tag.
func (r Role) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
