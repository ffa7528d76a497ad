// Package access provides the identity and project-access boundary for the
// asset graph service. It answers "who is the actor" and "may this actor act
// on this project's assets"; membership data itself is owned by the outer
// application and only read here.
package access

import (
	"context"
	"net/http"
	"strings"
)

// AnonymousUser is the identity assigned when no credentials are present.
const AnonymousUser = "anonymous"

// identityCtxKey is an unexported type used as the context key for Identity.
type identityCtxKey struct{}

// Identity represents the authenticated actor making a request.
type Identity struct {
	User   string
	Email  string
	Groups []string
}

// Anonymous reports whether the identity carries no authenticated user.
func (id Identity) Anonymous() bool {
	return id.User == "" || id.User == AnonymousUser
}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// IdentityMiddleware returns HTTP middleware that extracts identity from
// X-Remote-User, X-Remote-Email and X-Remote-Group headers and stores it in
// the request context. If X-Remote-User is missing, the user defaults to
// "anonymous". X-Remote-Group is comma-separated.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get("X-Remote-User"))
			if user == "" {
				user = AnonymousUser
			}

			var groups []string
			groupHeader := strings.TrimSpace(r.Header.Get("X-Remote-Group"))
			if groupHeader != "" {
				for _, g := range strings.Split(groupHeader, ",") {
					g = strings.TrimSpace(g)
					if g != "" {
						groups = append(groups, g)
					}
				}
			}

			id := Identity{
				User:   user,
				Email:  strings.TrimSpace(r.Header.Get("X-Remote-Email")),
				Groups: groups,
			}
			ctx := WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
