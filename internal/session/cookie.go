package session

import (
	"net/http"
	"strings"
)

// CookieName is the name of the HTTP-only session cookie
const CookieName = "token"

// CookieMaxAge is the cookie lifetime in seconds (7 days)
const CookieMaxAge = 7 * 24 * 60 * 60

// SetCookie writes the session credential as a strict same-site cookie
func SetCookie(w http.ResponseWriter, credential string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    credential,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the session cookie (logout)
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// CredentialFromRequest returns the credential carried by r: the session
// cookie first, then an Authorization Bearer header. Empty if neither.
func CredentialFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	scheme, value, found := strings.Cut(h, " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(value)
	}
	return ""
}
