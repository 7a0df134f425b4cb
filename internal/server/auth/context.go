package auth

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/tables"
)

type ctxKey string

const callerKey ctxKey = "caller"

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, c tables.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromContext returns the caller stored by WithCaller.
func CallerFromContext(ctx context.Context) (tables.Caller, bool) {
	c, ok := ctx.Value(callerKey).(tables.Caller)
	return c, ok && c.UserID != ""
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// value. A bare token without the scheme is accepted as well.
func BearerToken(header string) (string, error) {
	parts := strings.Fields(header)
	switch {
	case len(parts) == 2 && strings.EqualFold(parts[0], strings.TrimSpace(common.BearerPrefix)):
		return parts[1], nil
	case len(parts) == 1 && !strings.EqualFold(parts[0], strings.TrimSpace(common.BearerPrefix)):
		return parts[0], nil
	default:
		return "", common.ErrorUnauthorized
	}
}
