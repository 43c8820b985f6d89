package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tooldo/internal/rbac"
	"tooldo/internal/repo"
)

// AuthConfig controls how incoming requests are authenticated.
type AuthConfig struct {
	// JWTSecret enables Bearer token auth when non-empty.
	JWTSecret string
	// AllowLegacyMemberHeader accepts a plain X-Member-Id header. Intended
	// for local development only.
	AllowLegacyMemberHeader bool
	Logger                  *slog.Logger
}

// Principal identifies the authenticated caller for the rest of the request.
type Principal struct {
	MemberID string
	Role     rbac.Role
	Source   string // "jwt", "api_key" or "header"
}

type principalKey struct{}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorID(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.MemberID
}

type jwtClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// signDevToken mints a short-lived HS256 token for local development.
func signDevToken(secret, memberID string, role rbac.Role, now time.Time) (string, error) {
	claims := jwtClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   memberID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseJWT(secret, raw string) (Principal, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return Principal{}, errors.New("invalid token")
	}
	return Principal{MemberID: claims.Subject, Role: rbac.Role(claims.Role), Source: "jwt"}, nil
}

// newAuthMiddleware authenticates requests under basePath. The order is
// Bearer JWT, then X-Api-Key, then the legacy X-Member-Id header when
// allowed. Health and docs endpoints stay open.
func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	open := map[string]bool{
		basePath + "/health":    true,
		basePath + "/docs":      true,
		basePath + "/openapi":   true,
		basePath + "/dev/login": true,
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if open[req.URL.Path] || !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}

			if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				if cfg.JWTSecret == "" {
					respondAuthError(w, http.StatusUnauthorized, "bearer auth not configured")
					return
				}
				p, err := parseJWT(cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
				if err != nil {
					logger.Debug("jwt rejected", "error", err)
					respondAuthError(w, http.StatusUnauthorized, "invalid bearer token")
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), p)))
				return
			}

			if raw := req.Header.Get("X-Api-Key"); raw != "" {
				key, err := r.GetAPIKeyByHash(req.Context(), repo.HashAPIKey(raw))
				if err != nil {
					if !errors.Is(err, repo.ErrNotFound) {
						logger.Error("api key lookup", "error", err)
					}
					respondAuthError(w, http.StatusUnauthorized, "invalid api key")
					return
				}
				member, err := r.GetMember(req.Context(), key.MemberID)
				if err != nil {
					respondAuthError(w, http.StatusUnauthorized, "api key owner not found")
					return
				}
				p := Principal{MemberID: member.ID, Role: member.Role, Source: "api_key"}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), p)))
				return
			}

			if cfg.AllowLegacyMemberHeader {
				if id := strings.TrimSpace(req.Header.Get("X-Member-Id")); id != "" {
					p := Principal{MemberID: id, Source: "header"}
					if member, err := r.GetMember(req.Context(), id); err == nil {
						p.Role = member.Role
					}
					next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), p)))
					return
				}
			}

			respondAuthError(w, http.StatusUnauthorized, "authentication required")
		})
	}
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func respondAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    status,
		"message": message,
	})
}
