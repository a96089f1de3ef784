package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/machmate/machmate-web/internal/events"
	"github.com/machmate/machmate-web/internal/form"
	"github.com/machmate/machmate-web/internal/logging"
	"github.com/machmate/machmate-web/internal/models"
	"github.com/machmate/machmate-web/internal/payment"
	"github.com/machmate/machmate-web/pkg/apiclient"
)

type subscriptionView struct {
	Plans        []models.Plan        `json:"plans"`
	Subscription *models.Subscription `json:"subscription"`
	Checkout     *payment.Options     `json:"checkout,omitempty"`
}

func (h *Handler) Subscription(c echo.Context) error {
	p := h.page(c, "subscription")
	data := subscriptionView{Plans: []models.Plan{}}
	p.Data = &data

	err := load(c,
		func(ctx context.Context, cr *apiclient.Credentials) error {
			plans, err := h.API.ListPlans(ctx, cr)
			if err == nil {
				data.Plans = plans
			}
			return err
		},
		func(ctx context.Context, cr *apiclient.Credentials) error {
			sub, err := h.API.CurrentSubscription(ctx, cr)
			if err == nil {
				data.Subscription = sub
			}
			return err
		},
	)
	if err != nil {
		return h.fail(c, err, p, 0)
	}
	return h.render(c, http.StatusOK, p)
}

// Checkout creates a backend order and returns the options the browser hands
// to the payment widget.
func (h *Handler) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout")
	p := h.page(c, "subscription")

	planID, err := strconv.ParseInt(strings.TrimSpace(values(c)["plan_id"]), 10, 64)
	if err != nil || planID <= 0 {
		p.Banner = "Choose a plan to continue."
		return h.render(c, http.StatusUnprocessableEntity, p)
	}

	var opts payment.Options
	err = h.guarded(c, "checkout", func(ctx context.Context) error {
		cr := creds(c)
		plans, err := h.API.ListPlans(ctx, cr)
		if err != nil {
			return err
		}
		var plan *models.Plan
		for i := range plans {
			if plans[i].ID == planID {
				plan = &plans[i]
			}
		}
		if plan == nil {
			return &apiclient.APIError{Status: http.StatusNotFound, Message: "That plan is no longer available."}
		}
		order, err := h.API.CreateOrder(ctx, cr, planID)
		if err != nil {
			return err
		}
		var prefill payment.Prefill
		if s := current(c); s != nil {
			prefill = payment.Prefill{Name: s.Name, Email: s.Email}
		}
		opts, err = payment.BuildOptions(h.Payment, *order, *plan, prefill)
		return err
	})
	switch {
	case errors.Is(err, form.ErrBusy):
		p.Banner = busyBanner
		return h.render(c, http.StatusConflict, p)
	case errors.Is(err, payment.ErrMissingKey), errors.Is(err, payment.ErrInvalidOrder):
		l.Error("checkout_unavailable", "plan_id", planID, "error", err)
		p.Banner = "Payments are not available right now. Please try again later."
		return h.render(c, http.StatusServiceUnavailable, p)
	case err != nil:
		return h.fail(c, err, p, 0)
	}

	l.Info("checkout_created", "plan_id", planID, "order_id", opts.OrderID)
	p.Data = subscriptionView{Plans: []models.Plan{}, Checkout: &opts}
	return h.render(c, http.StatusOK, p)
}

// VerifyPayment forwards the widget's reply to the backend, which checks the
// signature, then reloads the subscription.
func (h *Handler) VerifyPayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "verify_payment")
	p := h.page(c, "subscription")

	vals := values(c)
	reply := apiclient.PaymentVerification{
		OrderID:   vals["razorpay_order_id"],
		PaymentID: vals["razorpay_payment_id"],
		Signature: vals["razorpay_signature"],
	}
	if err := payment.CheckReply(reply); err != nil {
		l.Warn("payment_reply_incomplete", "error", err)
		p.Banner = "Payment details are incomplete."
		return h.render(c, http.StatusUnprocessableEntity, p)
	}

	var sub *models.Subscription
	err := h.guarded(c, "verify-payment", func(ctx context.Context) error {
		cr := creds(c)
		if err := h.API.VerifyPayment(ctx, cr, reply); err != nil {
			return err
		}
		var err error
		sub, err = h.API.CurrentSubscription(ctx, cr)
		return err
	})
	if errors.Is(err, form.ErrBusy) {
		p.Banner = busyBanner
		return h.render(c, http.StatusConflict, p)
	}
	if err != nil {
		return h.fail(c, err, p, 0)
	}

	l.Info("payment_verified", "order_id", reply.OrderID, "plan", sub.Plan)
	p.Data = subscriptionView{Plans: []models.Plan{}, Subscription: sub}
	p.Banner = "Payment successful. Your subscription is active."
	return h.render(c, http.StatusOK, p)
}

func (h *Handler) CancelSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cancel_subscription")
	p := h.page(c, "subscription")

	var sub *models.Subscription
	err := h.guarded(c, "cancel-subscription", func(ctx context.Context) error {
		cr := creds(c)
		if err := h.API.CancelSubscription(ctx, cr); err != nil {
			return err
		}
		var err error
		sub, err = h.API.CurrentSubscription(ctx, cr)
		return err
	})
	if errors.Is(err, form.ErrBusy) {
		p.Banner = busyBanner
		return h.render(c, http.StatusConflict, p)
	}
	if err != nil {
		return h.fail(c, err, p, 0)
	}

	l.Info("subscription_cancelled", "plan", sub.Plan)
	h.emit(c, events.SubscriptionCancelled, string(sub.Plan), nil)
	p.Data = subscriptionView{Plans: []models.Plan{}, Subscription: sub}
	p.Banner = "Your subscription has been cancelled."
	return h.render(c, http.StatusOK, p)
}
