package events

import (
	"context"
	"time"

	"github.com/machmate/machmate-web/internal/logging"
	"github.com/machmate/machmate-web/internal/models"
)

const (
	Login                 = "login"
	Logout                = "logout"
	ProjectCreated        = "project_created"
	ProjectDeleted        = "project_deleted"
	QuotationSubmitted    = "quotation_submitted"
	QuotationAccepted     = "quotation_accepted"
	SubscriptionCancelled = "subscription_cancelled"
)

type Event struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Role      models.Role       `json:"role,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	At        time.Time         `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, key string, ev Event) error
	Close() error
}

// Nop is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }
func (Nop) Close() error                                  { return nil }

const emitTimeout = 3 * time.Second

// Emit publishes best-effort: failures are logged and never reach the caller.
func Emit(ctx context.Context, pub Publisher, ev Event) {
	if pub == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()
	if err := pub.Publish(ctx, ev.SessionID, ev); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "event", ev.Type, "error", err)
	}
}
