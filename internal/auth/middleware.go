// internal/auth/middleware.go
// JWT bearer middleware. Token issuance lives in the identity service; this
// service only validates access tokens and puts the user id into the
// request context.

package auth

import (
    "context"
    "net/http"
    "strings"

    "github.com/lumera-app/match-service/internal/common/utils"
)

// Middleware validates bearer tokens.
type Middleware struct {
    jwtSecret string
}

// NewMiddleware creates the middleware.
func NewMiddleware(jwtSecret string) *Middleware {
    return &Middleware{jwtSecret: jwtSecret}
}

// Authenticate verifies the JWT and adds the user id to the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        token := extractToken(r)
        if token == "" {
            utils.ErrorResponse(w, "Missing or invalid authorization header", http.StatusUnauthorized)
            return
        }

        claims, err := utils.ValidateJWT(token, m.jwtSecret)
        if err != nil {
            utils.ErrorResponse(w, "Invalid or expired token", http.StatusUnauthorized)
            return
        }
        if claims.Type != "access" {
            utils.ErrorResponse(w, "Invalid token type", http.StatusUnauthorized)
            return
        }

        ctx := context.WithValue(r.Context(), "userID", claims.UserID)
        next.ServeHTTP(w, r.WithContext(ctx))
    })
}

// extractToken pulls the bearer token from the Authorization header, with a
// query-parameter fallback for WebSocket clients that cannot set headers.
func extractToken(r *http.Request) string {
    header := r.Header.Get("Authorization")
    if strings.HasPrefix(header, "Bearer ") {
        return strings.TrimPrefix(header, "Bearer ")
    }
    return r.URL.Query().Get("token")
}
