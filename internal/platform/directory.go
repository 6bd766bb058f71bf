package platform

import (
	"context"
	"errors"
	"strings"
)

// ErrUserNotFound is returned when no lookup strategy recognizes the
// reference.
var ErrUserNotFound = errors.New("platform: user not found")

// User is a resolved platform user.
type User struct {
	ID       string
	Username string
}

// LookupStrategy resolves one kind of user reference (numeric id,
// @username, reply target, ...). Strategies report ErrUserNotFound when
// the reference is not theirs to resolve.
type LookupStrategy interface {
	Lookup(ctx context.Context, ref string) (User, error)
}

// Directory tries an ordered list of lookup strategies and returns the
// first hit. It replaces ad hoc per-call-site user resolution.
type Directory struct {
	strategies []LookupStrategy
}

// NewDirectory builds a directory over the given strategies, in order.
func NewDirectory(strategies ...LookupStrategy) *Directory {
	return &Directory{strategies: strategies}
}

// Lookup resolves ref via the first strategy that recognizes it.
func (d *Directory) Lookup(ctx context.Context, ref string) (User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return User{}, ErrUserNotFound
	}
	for _, s := range d.strategies {
		u, err := s.Lookup(ctx, ref)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
	}
	return User{}, ErrUserNotFound
}

// IDStrategy accepts plain numeric identifiers as-is.
type IDStrategy struct{}

func (IDStrategy) Lookup(ctx context.Context, ref string) (User, error) {
	if ref == "" || strings.HasPrefix(ref, "@") {
		return User{}, ErrUserNotFound
	}
	for _, c := range ref {
		if c < '0' || c > '9' {
			return User{}, ErrUserNotFound
		}
	}
	return User{ID: ref}, nil
}

// UsernameStrategy resolves @handles through a username index.
type UsernameStrategy struct {
	Resolve func(ctx context.Context, username string) (User, error)
}

func (s UsernameStrategy) Lookup(ctx context.Context, ref string) (User, error) {
	if !strings.HasPrefix(ref, "@") || s.Resolve == nil {
		return User{}, ErrUserNotFound
	}
	return s.Resolve(ctx, strings.TrimPrefix(ref, "@"))
}
