package session

import (
	"context"
	"errors"
	"time"

	"github.com/machmate/machmate-web/internal/models"
	"github.com/machmate/machmate-web/pkg/apiclient"
)

const (
	RememberTTL  = 30 * 24 * time.Hour
	TransientTTL = 12 * time.Hour
)

var ErrNotFound = errors.New("session not found")

// Session is owned by the auth gate; handlers only read it.
type Session struct {
	ID            string                `json:"id"`
	Authenticated bool                  `json:"authenticated"`
	Role          models.Role           `json:"role"`
	RememberMe    bool                  `json:"remember_me"`
	Email         string                `json:"email"`
	Name          string                `json:"name,omitempty"`
	Upstream      apiclient.Credentials `json:"upstream"`
	CreatedAt     time.Time             `json:"created_at"`
}

// View is the read-only projection exposed to routing and rendering.
type View struct {
	Authenticated bool        `json:"isAuthenticated"`
	Role          models.Role `json:"role"`
	RememberMe    bool        `json:"rememberMe"`
}

func Anonymous() View {
	return View{Role: models.RoleNone}
}

func (s *Session) View() View {
	if s == nil || !s.Authenticated {
		return Anonymous()
	}
	return View{Authenticated: true, Role: s.Role, RememberMe: s.RememberMe}
}

func TTL(rememberMe bool) time.Duration {
	if rememberMe {
		return RememberTTL
	}
	return TransientTTL
}

type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
