package portalapi

import (
	"context"
	"net/http"
)

type ctxKey string

const cookiesKey ctxKey = "portal.session_cookies"

// WithSessionCookies stores the browser's session cookies in context so every
// gateway call made with that context carries them.
func WithSessionCookies(ctx context.Context, cookies []*http.Cookie) context.Context {
	return context.WithValue(ctx, cookiesKey, cookies)
}

// SessionCookiesFromContext returns the forwarded cookies if present.
func SessionCookiesFromContext(ctx context.Context) ([]*http.Cookie, bool) {
	cookies, ok := ctx.Value(cookiesKey).([]*http.Cookie)
	return cookies, ok && len(cookies) > 0
}
