// Package identity authenticates requests and carries the caller through the
// request context. Tokens are HS256 JWTs minted by the auth plane; an RS256
// path through a JWKS endpoint is available for deployments that rotate keys.
package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/nabil-haroun/bookably/libs/auth"
)

const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleClient = "client"
)

// Actor is the authenticated caller. BusinessID scopes every query the
// handlers run; StaffID and ClientID are set for staff and client tokens
// respectively.
type Actor struct {
	Sub        string
	BusinessID string
	Role       string
	StaffID    string
	ClientID   string
}

func (a Actor) Admin() bool { return a.Role == RoleAdmin }

type ctxKey int

const ctxKeyActor ctxKey = iota

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(Actor)
	return a, ok
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

type Verifier struct {
	secret string
	jwks   *auth.JWKSClient // nil when RS256 is not configured
}

func NewVerifier(secret string, jwks *auth.JWKSClient) *Verifier {
	return &Verifier{secret: secret, jwks: jwks}
}

func (v *Verifier) verify(token string) (*auth.Claims, error) {
	if v.jwks != nil {
		header, err := auth.ParseHeader(token)
		if err != nil {
			return nil, err
		}
		if header.Alg == "RS256" && header.Kid != "" {
			pub, err := v.jwks.Get(header.Kid)
			if err != nil {
				return nil, err
			}
			return auth.VerifyRS256(token, pub)
		}
	}
	return auth.ParseAndVerifyHS256(token, v.secret)
}

// Require rejects requests without a valid bearer token and stores the Actor
// in the request context.
func (v *Verifier) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := v.verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		actor := Actor{
			Sub:        claims.Sub,
			BusinessID: claims.BusinessID,
			Role:       claims.Role,
			StaffID:    claims.StaffID,
			ClientID:   claims.ClientID,
		}
		if actor.BusinessID == "" {
			http.Error(w, "token lacks business scope", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireRole layers a role check on top of Require.
func RequireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		if _, ok := allowed[actor.Role]; !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
