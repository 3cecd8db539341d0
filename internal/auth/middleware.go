// Package auth guards the control API. Three modes: none (open), key
// (static API key header) and jwt (OIDC bearer tokens verified against the
// issuer's JWKS).
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/pbxetl/internal/config"
)

type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

type contextKey string

const UserContextKey contextKey = "user"

// JWKSManager handles JWKS fetching and caching
type JWKSManager struct {
	jwks      keyfunc.Keyfunc
	issuerURL string
	mu        sync.RWMutex
	logger    zerolog.Logger
}

// NewJWKSManager fetches the issuer's signing keys once at startup; keyfunc
// refreshes them in the background afterwards.
func NewJWKSManager(issuerURL string, logger zerolog.Logger) (*JWKSManager, error) {
	m := &JWKSManager{issuerURL: issuerURL, logger: logger}

	jwksURL := strings.TrimSuffix(issuerURL, "/") + "/protocol/openid-connect/certs"
	logger.Info().Str("url", jwksURL).Msg("fetching JWKS")

	k, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create keyfunc: %w", err)
	}

	m.mu.Lock()
	m.jwks = k
	m.mu.Unlock()
	return m, nil
}

func (m *JWKSManager) keyfunc() jwt.Keyfunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.jwks == nil {
		return nil
	}
	return m.jwks.Keyfunc
}

// Middleware builds the auth middleware for the configured mode. The health
// endpoint always stays open so load balancers can probe it.
func Middleware(cfg *config.Config, jwks *JWKSManager, logger zerolog.Logger) func(http.Handler) http.Handler {
	switch cfg.AuthMode {
	case "key":
		return keyMiddleware(cfg.APIKey, logger)
	case "jwt":
		return jwtMiddleware(jwks, logger)
	default:
		return func(next http.Handler) http.Handler { return next }
	}
}

func keyMiddleware(apiKey string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-Key")
			if provided == "" {
				provided = r.URL.Query().Get("key")
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				logger.Warn().Str("path", r.URL.Path).Msg("rejected request with bad API key")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func jwtMiddleware(jwks *JWKSManager, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := extractToken(r)
			if tokenString == "" {
				http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
				return
			}

			claims, err := validateToken(jwks, tokenString)
			if err != nil {
				logger.Warn().Err(err).Msg("token validation failed")
				http.Error(w, fmt.Sprintf("Unauthorized: %v", err), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken gets the token from Authorization header or query parameter
func extractToken(r *http.Request) string {
	// Try Authorization header first
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString != authHeader {
			return tokenString
		}
	}

	// Try query parameter (for WebSocket connections)
	return r.URL.Query().Get("token")
}

// validateToken verifies the JWT signature using JWKS
func validateToken(jwks *JWKSManager, tokenString string) (*Claims, error) {
	if jwks == nil {
		return nil, fmt.Errorf("JWKS not configured")
	}
	kf := jwks.keyfunc()
	if kf == nil {
		return nil, fmt.Errorf("JWKS not available")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, kf,
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}))
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// GetUserFromContext retrieves user claims from request context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}
