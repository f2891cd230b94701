package session

import (
	"context"
	"net/http"

	"github.com/maneesh/docsync/internal/apperr"
)

// Placeholder identity used only when the debug fallback is compiled in and
// enabled by configuration.
const (
	DebugSubject = "000000000000000000000001"
	DebugToken   = "debug-token"
)

// Identity is the effective caller of a document operation. Token is the
// credential forwarded to the index backend.
type Identity struct {
	Subject  string
	Token    string
	Fallback bool
}

// Resolver maps an inbound request to an Identity
type Resolver struct {
	tokens   *TokenService
	fallback bool
}

// NewResolver creates a resolver. allowFallback has effect only in builds
// carrying the debugauth tag; release builds always reject.
func NewResolver(tokens *TokenService, allowFallback bool) *Resolver {
	return &Resolver{
		tokens:   tokens,
		fallback: allowFallback && FallbackCompiled,
	}
}

// FallbackActive reports whether unauthenticated requests map to DebugSubject
func (r *Resolver) FallbackActive() bool {
	return r.fallback
}

// Resolve verifies the request credential
func (r *Resolver) Resolve(req *http.Request) (Identity, error) {
	credential := CredentialFromRequest(req)
	if subject, ok := r.tokens.Verify(credential); ok {
		return Identity{Subject: subject, Token: credential}, nil
	}
	if r.fallback {
		return Identity{Subject: DebugSubject, Token: DebugToken, Fallback: true}, nil
	}
	return Identity{}, apperr.New(apperr.Unauthorized, "session.resolve", "Unauthorized")
}

type identityKey struct{}

// WithIdentity stores id in ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
