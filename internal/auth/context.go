package auth

import (
	"context"

	"github.com/dukerupert/postdeck/internal/model"
)

type contextKey struct{}

// AuthContext is the signed-in user as seen by a single console request.
type AuthContext struct {
	UserID   int64
	Username string
	Email    string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// WithUser stores u in ctx. A nil user stores an empty AuthContext, which
// still marks the request as authenticated.
func WithUser(ctx context.Context, u *model.User) context.Context {
	ac := AuthContext{}
	if u != nil {
		ac = AuthContext{UserID: u.ID, Username: u.Username, Email: u.Email}
	}
	return WithAuth(ctx, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func Username(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.Username
}

func IsAuthenticated(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}
