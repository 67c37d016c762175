package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/taskmanager/internal/security"
)

const claimsContextKey contextKey = "tokenClaims"

// TokenVerifier validates bearer tokens presented by clients.
type TokenVerifier interface {
	Verify(token string, want security.TokenType) (*security.Claims, error)
}

// ClaimsFromContext returns the verified token claims attached by the token middleware.
func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*security.Claims)
	return claims, ok && claims != nil
}

// IdentityFromContext returns the identity of the authenticated caller, or "".
func IdentityFromContext(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Identity()
	}
	return ""
}

func contextWithClaims(ctx context.Context, claims *security.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

func requireToken(verifier TokenVerifier, want security.TokenType, logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeUnauthorized(w, err.Error())
			return
		}

		claims, err := verifier.Verify(raw, want)
		if err != nil {
			logger.Debug("token rejected",
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestIDFromContext(r.Context())),
				zap.Error(err),
			)
			writeTokenError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
	})
}

var (
	errMissingAuthHeader = errors.New("missing Authorization header")
	errBadAuthHeader     = errors.New("authorization header must use the Bearer scheme")
)

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingAuthHeader
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadAuthHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errBadAuthHeader
	}
	return token, nil
}

func writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		writeUnauthorized(w, "token has expired", "request a new access token from POST /api/auth/refresh")
	case errors.Is(err, security.ErrTokenRevoked):
		writeUnauthorized(w, "token has been revoked")
	case errors.Is(err, security.ErrInvalidToken):
		writeUnauthorized(w, "token is invalid")
	case errors.Is(err, security.ErrWrongTokenType):
		writeError(w, http.StatusUnprocessableEntity, "Invalid token", err.Error())
	default:
		writeInternalError(w, err)
	}
}

func writeUnauthorized(w http.ResponseWriter, details string, suggestion ...string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	writeError(w, http.StatusUnauthorized, "Unauthorized", details, suggestion...)
}
