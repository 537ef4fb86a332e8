package auth

import (
	"context"
)

// User is the authenticated caller.
type User struct {
	ID      string
	IsAdmin bool
}

// Role is the casbin subject for the user.
func (u User) Role() string {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleCustomer
}

// CanSee reports whether u may read a record owned by ownerID.
func (u User) CanSee(ownerID string) bool {
	return u.IsAdmin || u.ID == ownerID
}

type contextKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	return u, ok
}
