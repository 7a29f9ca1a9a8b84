// Package cookie reads and writes the refresh token cookie.
package cookie

import (
	"net/http"
	"time"
)

const (
	RefreshName = "refresh_token"
	Path        = "/account"
)

type Settings struct {
	Secure bool
	MaxAge time.Duration
}

func SetRefresh(w http.ResponseWriter, token string, s Settings) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshName,
		Value:    token,
		Path:     Path,
		MaxAge:   int(s.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearRefresh(w http.ResponseWriter, s Settings) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshName,
		Value:    "",
		Path:     Path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Refresh returns the refresh token sent by the client or "" when absent.
func Refresh(r *http.Request) string {
	c, err := r.Cookie(RefreshName)
	if err != nil {
		return ""
	}

	return c.Value
}
