package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultWriteScope = "planner:write"

type Principal struct {
	Subject string
	Scopes  []string
}

type principalKey struct{}

// PrincipalFromContext returns the principal attached by Middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Verifier checks HS256 bearer tokens for a required scope.
type Verifier struct {
	secret []byte
	scope  string
	issuer string
}

// NewVerifier requires a non-empty secret. An empty issuer skips the iss check.
func NewVerifier(secret, scope, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret required")
	}
	if scope == "" {
		scope = DefaultWriteScope
	}
	return &Verifier{secret: []byte(secret), scope: scope, issuer: issuer}, nil
}

func (v *Verifier) VerifyRequest(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return Principal{}, errors.New("bearer token required")
	}
	return v.verifyToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
}

func (v *Verifier) verifyToken(tokenStr string) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("token parse error: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Principal{}, errors.New("invalid token")
	}

	scopes := scopesFrom(claims)
	if !contains(scopes, v.scope) {
		return Principal{}, fmt.Errorf("missing required scope %q", v.scope)
	}
	sub, _ := claims.GetSubject()
	return Principal{Subject: sub, Scopes: scopes}, nil
}

// scopesFrom reads a space-separated "scope" claim or a "roles" array.
func scopesFrom(claims jwt.MapClaims) []string {
	if scope, ok := claims["scope"].(string); ok {
		return strings.Fields(scope)
	}
	var out []string
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Middleware rejects requests without a valid token. A nil verifier lets
// everything through, which is how auth is disabled.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := v.VerifyRequest(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="ai-planner"`)
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
		})
	}
}
