package auth

import (
	"context"
	"strconv"

	domain "github.com/webshop/api/internal/domain"
)

// Identity captures the authenticated principal extracted from a session token.
type Identity struct {
	UserID int64
	Role   domain.Role
	Login  string
}

// HasRole reports whether the identity carries the requested role.
func (i *Identity) HasRole(role domain.Role) bool {
	return i != nil && i.Role == role
}

// HasAnyRole reports whether the identity carries any of the provided roles.
func (i *Identity) HasAnyRole(roles ...domain.Role) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// Subject renders the token subject for the identity.
func (i *Identity) Subject() string {
	if i == nil {
		return ""
	}
	return strconv.FormatInt(i.UserID, 10)
}

type identityContextKey struct{}

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
