package cookie

import (
	"net/http"
	"time"

	"github.com/authfront/authfront/internal/envutil"
	"github.com/authfront/authfront/internal/log"
)

// DefaultSessionCookie is the cookie carrying the server-side session id
const DefaultSessionCookie = "authfront_session"

// SetSession sets the session cookie with appropriate security settings.
// The Secure attribute is negotiated from the runtime environment: it is
// dropped only in development mode so the flow works over plain HTTP.
func SetSession(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Lax",
	})
}

// ClearSession removes the session cookie by setting MaxAge to -1
func ClearSession(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// GetSession retrieves the session id from the request, or "" if absent
func GetSession(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
