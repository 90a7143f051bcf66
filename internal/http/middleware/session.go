package middleware

import (
	"net/http"

	"github.com/wolfman30/patient-portal/internal/portalapi"
)

// ForwardSessionCookies makes the browser's cookies available to portal API
// calls made while serving the request.
func ForwardSessionCookies(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookies := r.Cookies()
		if len(cookies) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx := portalapi.WithSessionCookies(r.Context(), cookies)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
