package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/machmate/machmate-web/internal/logging"
	"github.com/machmate/machmate-web/internal/models"
	"github.com/machmate/machmate-web/internal/session"
	"github.com/machmate/machmate-web/pkg/apiclient"
)

var ErrUnknownRole = errors.New("unknown role")

// API is the slice of the backend client the gate needs.
type API interface {
	EnsureCSRF(ctx context.Context, creds *apiclient.Credentials) error
	Login(ctx context.Context, creds *apiclient.Credentials, email, password string) (*models.User, error)
	Logout(ctx context.Context, creds *apiclient.Credentials) error
	Me(ctx context.Context, creds *apiclient.Credentials) (*models.User, error)
}

type Status int

const (
	Pending Status = iota
	Authenticated
	Anonymous
)

func (s Status) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "pending"
	}
}

type State struct {
	Status  Status
	Session *session.Session
	Hint    session.Hint
	HasHint bool
}

func (s State) View() session.View {
	if s.Status != Authenticated {
		return session.Anonymous()
	}
	return s.Session.View()
}

type Result struct {
	State
	ClearCookies bool
	ClearHint    bool
	RefreshHint  bool
}

type Gate struct {
	api    API
	store  session.Store
	hints  *session.HintCodec
	secure bool
	now    func() time.Time
}

func New(api API, store session.Store, hints *session.HintCodec, secure bool) *Gate {
	return &Gate{api: api, store: store, hints: hints, secure: secure, now: time.Now}
}

// Resolve moves one request from Pending to Authenticated or Anonymous. The
// hint is only recorded; the role always comes from a single /auth/me/ call.
// Every failure resolves to Anonymous. Only a 401 or an unknown role discards
// the stored session.
func (g *Gate) Resolve(ctx context.Context, sid string, hint session.Hint, hasHint bool) Result {
	l := logging.FromContext(ctx).With("component", "authgate")
	res := Result{State: State{Status: Pending, Hint: hint, HasHint: hasHint}}

	anonymous := func(clear bool) Result {
		res.Status = Anonymous
		res.Session = nil
		res.ClearCookies = clear
		return res
	}

	if sid == "" {
		return anonymous(hasHint)
	}

	sess, err := g.store.Get(ctx, sid)
	if errors.Is(err, session.ErrNotFound) {
		l.Info("session_missing", "had_hint", hasHint)
		return anonymous(true)
	}
	if err != nil {
		l.Error("session_load_failed", "error", err)
		return anonymous(false)
	}

	user, err := g.api.Me(ctx, &sess.Upstream)
	if errors.Is(err, apiclient.ErrUnauthorized) {
		l.Warn("session_rejected", "reason", "unauthorized", "error", err)
		g.discard(ctx, sid)
		return anonymous(true)
	}
	if err != nil {
		// Backend unreachable: keep the stored session for the next request.
		l.Warn("session_unconfirmed", "error", err)
		res = anonymous(false)
		res.ClearHint = hasHint
		return res
	}
	if !user.Role.Valid() {
		l.Warn("session_rejected", "reason", "unknown_role")
		g.discard(ctx, sid)
		return anonymous(true)
	}

	sess.Authenticated = true
	sess.Role = user.Role
	if user.Email != "" {
		sess.Email = user.Email
	}
	if user.Name != "" {
		sess.Name = user.Name
	}
	if err := g.store.Save(ctx, sess); err != nil {
		l.Error("session_save_failed", "error", err)
	}

	res.Status = Authenticated
	res.Session = sess
	res.RefreshHint = !hasHint || hint.Role != sess.Role || hint.RememberMe != sess.RememberMe
	return res
}

// Login authenticates upstream and persists a brand new session. The role
// comes from the login response, so no /auth/me/ call follows.
func (g *Gate) Login(ctx context.Context, email, password string, rememberMe bool) (*session.Session, error) {
	var creds apiclient.Credentials
	if err := g.api.EnsureCSRF(ctx, &creds); err != nil {
		return nil, fmt.Errorf("fetch csrf: %w", err)
	}
	user, err := g.api.Login(ctx, &creds, email, password)
	if err != nil {
		return nil, err
	}
	if !user.Role.Valid() {
		return nil, ErrUnknownRole
	}

	sess := &session.Session{
		ID:            uuid.NewString(),
		Authenticated: true,
		Role:          user.Role,
		RememberMe:    rememberMe,
		Email:         user.Email,
		Name:          user.Name,
		Upstream:      creds,
		CreatedAt:     g.now().UTC(),
	}
	if err := g.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout is best-effort upstream; the local session is always removed.
func (g *Gate) Logout(ctx context.Context, sid string) error {
	sess, err := g.store.Get(ctx, sid)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := g.api.Logout(ctx, &sess.Upstream); err != nil {
		logging.FromContext(ctx).Warn("upstream_logout_failed", "error", err)
	}
	return g.store.Delete(ctx, sid)
}

func (g *Gate) discard(ctx context.Context, sid string) {
	if err := g.store.Delete(ctx, sid); err != nil {
		logging.FromContext(ctx).Error("session_delete_failed", "error", err)
	}
}
