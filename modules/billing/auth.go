package billing

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/habitkit/habitkit/pkg/entitlement"
	"github.com/habitkit/habitkit/pkg/jwt"
)

// Claims is the token payload the client presents on authenticated calls.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
}

// TokenVerifier validates a bearer token and returns the caller's identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (entitlement.Identity, error)
}

// JWTVerifier adapts the jwt service to TokenVerifier. The subject claim
// carries the user ID.
type JWTVerifier struct {
	svc *jwt.Service
}

func NewJWTVerifier(svc *jwt.Service) *JWTVerifier {
	if svc == nil {
		panic("billing: jwt service is required")
	}
	return &JWTVerifier{svc: svc}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (entitlement.Identity, error) {
	var claims Claims
	if err := v.svc.Parse(token, &claims); err != nil {
		return entitlement.Identity{}, entitlement.ErrUnauthenticated
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return entitlement.Identity{}, entitlement.ErrUnauthenticated
	}

	return entitlement.Identity{UserID: userID, Email: claims.Email}, nil
}

type identityCtxKey struct{}

// withAuth authenticates the request and stores the identity in the context.
// Failures answer with the auth error code the client maps to a forced
// sign-out.
func (s *Service) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := jwt.BearerTokenExtractor(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeInvalidToken)
			return
		}

		id, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeInvalidToken)
			return
		}

		ctx := context.WithValue(r.Context(), identityCtxKey{}, id)
		next(w, r.WithContext(ctx))
	}
}

func identityFromContext(ctx context.Context) (entitlement.Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(entitlement.Identity)
	return id, ok
}
