package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const pageClaimsKey contextKey = "pageClaims"

// PageClaims bind a page token to one patient and one mounted page.
type PageClaims struct {
	PageID string `json:"pid"`
	jwt.RegisteredClaims
}

// IssuePageToken signs an HS256 token for a freshly mounted page.
func IssuePageToken(secret, patientID, pageID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("middleware: page token secret is not configured")
	}
	now := time.Now()
	claims := PageClaims{
		PageID: pageID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   patientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// PageAuth requires a page token whose page id matches the {pageID} route
// parameter.
func PageAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "page auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := PageClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || claims.PageID == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if pageID := chi.URLParam(r, "pageID"); pageID != "" && pageID != claims.PageID {
				http.Error(w, "token does not match page", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), pageClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PageClaimsFromContext returns page token claims if present.
func PageClaimsFromContext(ctx context.Context) (PageClaims, bool) {
	claims, ok := ctx.Value(pageClaimsKey).(PageClaims)
	return claims, ok
}
