// Package identity carries the authenticated caller on a context.Context.
//
// Every engine operation resolves its caller through FromContext. Absence of
// an identity is reported as ErrNotAuthenticated before any authorization
// decision is made. Identities are attached either by the HTTP middleware
// after verifying a bearer token (see TokenResolver) or directly by tests and
// in-process callers through NewContext.
package identity

import (
	"context"
	"errors"

	"dragonfly/pkg/models"
)

// ErrNotAuthenticated is returned when no valid identity can be resolved.
var ErrNotAuthenticated = errors.New("not authenticated")

type ctxKey struct{}

// NewContext returns a copy of ctx carrying user as the caller.
func NewContext(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// FromContext returns the caller attached to ctx.
func FromContext(ctx context.Context) (models.User, error) {
	user, ok := ctx.Value(ctxKey{}).(models.User)
	if !ok || user.ID == "" || !user.Role.Valid() {
		return models.User{}, ErrNotAuthenticated
	}
	return user, nil
}

// HomeOffice returns the office a caller implicitly works in. Admins have
// none and must name an office per request.
func HomeOffice(user models.User) string {
	if user.Role == models.RoleAdmin {
		return ""
	}
	return user.OfficeID
}

// ScopeOffice picks the office scope for a list request: an explicit request
// wins, otherwise non-admins fall back to their home office.
func ScopeOffice(user models.User, requested string) string {
	if requested != "" {
		return requested
	}
	return HomeOffice(user)
}
