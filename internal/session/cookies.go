package session

import (
	"net/http"
	"time"
)

const IDCookie = "mm_sid"

// CreateCookie builds an HttpOnly Lax cookie. A zero exp yields a browser-session cookie.
func CreateCookie(name, value, path string, exp time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func DeleteCookie(name, path string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func IDCookieFor(s *Session, secure bool, now time.Time) *http.Cookie {
	var exp time.Time
	if s.RememberMe {
		exp = now.Add(RememberTTL)
	}
	return CreateCookie(IDCookie, s.ID, "/", exp, secure)
}

func ReadID(r *http.Request) string {
	ck, err := r.Cookie(IDCookie)
	if err != nil {
		return ""
	}
	return ck.Value
}
