package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/machmate/machmate-web/internal/models"
)

// PaymentVerification is forwarded to the backend unchanged; signatures are checked there.
type PaymentVerification struct {
	OrderID   string `json:"razorpay_order_id" form:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id" form:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature" form:"razorpay_signature"`
}

func (c *Client) ListPlans(ctx context.Context, creds *Credentials) ([]models.Plan, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, creds, "/subscriptions/plans/", &raw); err != nil {
		return nil, err
	}
	ws, err := decodeList[planWire](raw, "plans")
	if err != nil {
		return nil, err
	}
	return normalizeAll[planWire, models.Plan](ws), nil
}

// CurrentSubscription reports plan none when the maker has never subscribed.
func (c *Client) CurrentSubscription(ctx context.Context, creds *Credentials) (*models.Subscription, error) {
	var w subscriptionWire
	err := c.getJSON(ctx, creds, "/subscriptions/current/", &w)
	if errors.Is(err, ErrNotFound) {
		return &models.Subscription{Plan: models.PlanNone}, nil
	}
	if err != nil {
		return nil, err
	}
	s := w.normalize()
	return &s, nil
}

func (c *Client) CreateOrder(ctx context.Context, creds *Credentials, planID int64) (*models.Order, error) {
	var w orderWire
	in := map[string]int64{"plan_id": planID}
	if err := c.sendJSON(ctx, creds, http.MethodPost, "/subscriptions/create-order/", in, &w); err != nil {
		return nil, err
	}
	o := w.normalize()
	if o.PlanID == 0 {
		o.PlanID = planID
	}
	return &o, nil
}

func (c *Client) VerifyPayment(ctx context.Context, creds *Credentials, v PaymentVerification) error {
	return c.sendJSON(ctx, creds, http.MethodPost, "/subscriptions/verify-payment/", v, nil)
}

func (c *Client) CancelSubscription(ctx context.Context, creds *Credentials) error {
	return c.sendJSON(ctx, creds, http.MethodPost, "/subscriptions/cancel/", nil, nil)
}
