/*
auth.go - JWT bearer authentication and actor extraction

PURPOSE:
  Turns an Authorization header into a ledger.Actor. The engine itself is
  transport-agnostic; this is the only place where HTTP identity meets the
  role model.

TOKENS:
  HS256-signed JWTs carrying the actor ID as subject and the role as a
  custom claim. Tokens are issued out of band (an ops CLI or the identity
  service); this server only verifies.
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/leave-ledger/ledger"
)

// Claims are the JWT claims this service understands.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AuthManager verifies bearer tokens and issues them for tooling.
type AuthManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewAuthManager(secret, issuer string, ttl time.Duration) (*AuthManager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &AuthManager{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue signs a token for an actor. Used by the dev tooling and tests.
func (m *AuthManager) Issue(now time.Time, actorID string, role ledger.Role) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Role: string(role),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

// Verify parses and validates a token, returning the actor it names.
func (m *AuthManager) Verify(tokenString string) (ledger.Actor, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if _, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return ledger.Actor{}, err
	}

	if m.issuer != "" && claims.Issuer != m.issuer {
		return ledger.Actor{}, errors.New("issuer mismatch")
	}
	if claims.Subject == "" {
		return ledger.Actor{}, errors.New("subject missing")
	}
	switch ledger.Role(claims.Role) {
	case ledger.RoleOperator, ledger.RoleSeniorAdmin, ledger.RoleDeveloper:
	default:
		return ledger.Actor{}, errors.New("unknown role in token")
	}

	return ledger.Actor{ID: claims.Subject, Role: ledger.Role(claims.Role)}, nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

type contextKey string

const actorKey contextKey = "actor"

// RequireActor rejects requests without a valid bearer token and stores the
// verified actor in the request context.
func (m *AuthManager) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		actor, err := m.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext returns the verified actor for the request.
func ActorFromContext(ctx context.Context) (ledger.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(ledger.Actor)
	return actor, ok
}
