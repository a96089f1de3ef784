package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/machmate/machmate-web/internal/models"
)

const HintCookie = "mm_hint"

// Hint is the last known session shape. It lets the first render skip the
// login screen for a returning user and is never trusted for authorization.
type Hint struct {
	Role       models.Role
	RememberMe bool
}

type hintClaims struct {
	Role       string `json:"role"`
	RememberMe bool   `json:"rm"`
	jwt.RegisteredClaims
}

type HintCodec struct {
	key    []byte
	secure bool
	now    func() time.Time
}

func NewHintCodec(key []byte, secure bool) *HintCodec {
	return &HintCodec{key: key, secure: secure, now: time.Now}
}

func (h *HintCodec) Encode(hint Hint) (string, error) {
	now := h.now()
	claims := hintClaims{
		Role:       string(hint.Role),
		RememberMe: hint.RememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TTL(hint.RememberMe))),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.key)
}

// Decode returns ok=false for a missing, tampered, expired or role-less token.
func (h *HintCodec) Decode(token string) (Hint, bool) {
	if token == "" {
		return Hint{}, false
	}
	var claims hintClaims
	tkn, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return h.key, nil
	}, jwt.WithTimeFunc(h.now))
	if err != nil || !tkn.Valid {
		return Hint{}, false
	}
	role := models.ParseRole(claims.Role)
	if !role.Valid() {
		return Hint{}, false
	}
	return Hint{Role: role, RememberMe: claims.RememberMe}, true
}

func (h *HintCodec) FromRequest(r *http.Request) (Hint, bool) {
	ck, err := r.Cookie(HintCookie)
	if err != nil {
		return Hint{}, false
	}
	return h.Decode(ck.Value)
}

// Cookie is persistent with rememberMe and a browser-session cookie otherwise.
func (h *HintCodec) Cookie(hint Hint) (*http.Cookie, error) {
	tok, err := h.Encode(hint)
	if err != nil {
		return nil, err
	}
	var exp time.Time
	if hint.RememberMe {
		exp = h.now().Add(RememberTTL)
	}
	ck := CreateCookie(HintCookie, tok, "/", exp, h.secure)
	// The browser shell reads the role from it for its first paint.
	ck.HttpOnly = false
	return ck, nil
}

func (h *HintCodec) Clear() *http.Cookie {
	ck := DeleteCookie(HintCookie, "/", h.secure)
	ck.HttpOnly = false
	return ck
}
