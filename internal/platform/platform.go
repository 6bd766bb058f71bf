// Package platform defines the messaging-platform capability interface
// the moderation subsystem is built against. Implementations talk to a
// concrete chat platform; the subsystem only ever sees this interface.
package platform

import (
	"context"
	"time"
)

// Restrictions describes what a restricted member may still do.
// Zero value means fully restricted.
type Restrictions struct {
	CanSendMessages bool
	CanSendMedia    bool
	CanAddMembers   bool
	CanPinMessages  bool
}

// Unrestricted lifts all restrictions.
func Unrestricted() Restrictions {
	return Restrictions{
		CanSendMessages: true,
		CanSendMedia:    true,
		CanAddMembers:   true,
		CanPinMessages:  true,
	}
}

// Client is the capability interface over the messaging platform. It is
// injected at construction; the platform itself serializes member
// operations per target, so callers need no in-process locking.
type Client interface {
	AdminStatus(ctx context.Context, communityID, userID string) (bool, error)
	SendMessage(ctx context.Context, recipientID, text string) error
	RestrictMember(ctx context.Context, communityID, userID string, r Restrictions, until time.Time) error
	BanMember(ctx context.Context, communityID, userID string, until *time.Time) error
	UnbanMember(ctx context.Context, communityID, userID string) error
	DeleteMessage(ctx context.Context, communityID, messageID string) error
	PinMessage(ctx context.Context, communityID, messageID string, silent bool) error
}
