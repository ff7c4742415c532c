package domain

import (
	"context"
	"time"
)

type principalKey struct{}

// ContextPrincipal carries the authenticated identity through request context.
type ContextPrincipal struct {
	Name    string
	IsAdmin bool
}

// WithPrincipal stores a ContextPrincipal in the context.
func WithPrincipal(ctx context.Context, p ContextPrincipal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext extracts the ContextPrincipal from the context.
func PrincipalFromContext(ctx context.Context) (ContextPrincipal, bool) {
	p, ok := ctx.Value(principalKey{}).(ContextPrincipal)
	return p, ok
}

type realmKey struct{}

// WithRealm stores the realm identifier in the context. The metastore itself
// is single-realm (one database per realm); the realm travels in context for
// logging and auditing.
func WithRealm(ctx context.Context, realm string) context.Context {
	return context.WithValue(ctx, realmKey{}, realm)
}

// RealmFromContext extracts the realm identifier, or "" when unset.
func RealmFromContext(ctx context.Context) string {
	realm, _ := ctx.Value(realmKey{}).(string)
	return realm
}

// Clock abstracts wall-clock time so version timestamps and task-lease
// expiry are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// TimestampMillis converts a time to the epoch-millisecond representation
// persisted on entities.
func TimestampMillis(t time.Time) int64 { return t.UnixMilli() }
