package identity

import (
	"context"

	"github.com/nikhilbhutani/docqa/internal/models"
)

const RoleAdmin = "admin"

// User is the caller identity attached to a request.
type User struct {
	ID   string
	Role string
}

type contextKey string

const userKey contextKey = "user"

func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userKey).(*User)
	return u
}

// UserID returns the caller's id, or the anonymous user when the request
// carries no identity.
func UserID(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil && u.ID != "" {
		return u.ID
	}
	return models.AnonymousUserID
}

func IsAdmin(ctx context.Context) bool {
	u := UserFromContext(ctx)
	return u != nil && u.Role == RoleAdmin
}
